// Package domain models NOAA Global Forecast System (GFS) grid products and the
// flattening of one gridded variable into a row-per-cell table.
//
// # Data Source
//
// GFS 0.25° output is published to the public noaa-gfs-bdp-pds bucket. Each
// forecast step is one GRIB2 object holding several hundred records (one per
// variable and level) plus a companion ".idx" text inventory. Object creation
// notifications arrive as S3 events, usually wrapped in an SNS envelope.
//
// # Key Format
//
//	gfs.YYYYMMDD/HH/atmos/gfs.tHHz.pgrb2.0p25.f<forecast hour>
//	e.g. gfs.20210607/12/atmos/gfs.t12z.pgrb2.0p25.f003
//
// The run hour appears twice (directory and "tHHz"); the directory copy is
// authoritative. The forecast hour is one or more digits and is kept exactly as
// written when naming the output ("f003" stays "003"). Anything else, including
// the ".idx" objects themselves, is skipped. See [ParseObjectKey].
//
// # Index Format
//
//	<record>:<byte offset>:d=<YYYYMMDDHH>:<variable>:<level>:<forecast>:
//	e.g. 581:386355234:d=2021060712:TMP:2 m above ground:3 hour fcst:
//
// A record matches when the whole line contains the selector substring. The
// byte range of a record runs from its own offset to the next record's offset,
// inclusive, which fetches one byte of the following message. The last record
// has no successor and is read through the end of the object. Exactly one line
// may match; see [LocateVariable].
//
// # Grid Layout
//
// Decoded values are row-major, Values[j*Nx+i], with i along longitude
// (columns) and j along latitude (rows). For the 0.25° global grid Nx=1440 and
// Ny=721, so one table has 1,038,240 rows. [Flatten] emits cells with i varying
// fastest so the table order equals the natural order of the value array.
package domain
