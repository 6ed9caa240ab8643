package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrEmptyEnvelope is returned when a notification carries no S3 records.
var ErrEmptyEnvelope = errors.New("notification has no s3 records")

// Ack is the fixed response shape returned to the invoking host on every
// completed invocation, including skipped keys.
type Ack struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

// Acknowledge returns the fixed acknowledgment.
func Acknowledge() Ack {
	return Ack{StatusCode: 200, Headers: map[string]string{}, IsBase64Encoded: true}
}

// ParseEnvelope extracts object keys from an object-created notification.
// Both SNS-wrapped S3 events and bare S3 events are accepted.
func ParseEnvelope(payload []byte) ([]ObjectKey, error) {
	var sns events.SNSEvent
	if err := json.Unmarshal(payload, &sns); err != nil {
		return nil, fmt.Errorf("parse notification: %w", err)
	}
	if len(sns.Records) > 0 && sns.Records[0].SNS.Message != "" {
		return ParseS3Event([]byte(sns.Records[0].SNS.Message))
	}
	return ParseS3Event(payload)
}

// ParseS3Event extracts object keys from an S3 event document.
func ParseS3Event(payload []byte) ([]ObjectKey, error) {
	var s3 events.S3Event
	if err := json.Unmarshal(payload, &s3); err != nil {
		return nil, fmt.Errorf("parse s3 event: %w", err)
	}
	return ObjectKeysFromS3Event(s3)
}

// ObjectKeysFromS3Event converts S3 event records into validated object keys.
// Keys in S3 notifications are URL-encoded.
func ObjectKeysFromS3Event(ev events.S3Event) ([]ObjectKey, error) {
	if len(ev.Records) == 0 {
		return nil, ErrEmptyEnvelope
	}
	keys := make([]ObjectKey, 0, len(ev.Records))
	for i, rec := range ev.Records {
		key := rec.S3.Object.Key
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		ok := ObjectKey{Bucket: rec.S3.Bucket.Name, Key: key}
		if err := validate.Struct(ok); err != nil {
			return nil, fmt.Errorf("s3 record %d: %w", i, err)
		}
		keys = append(keys, ok)
	}
	return keys, nil
}
