// Copyright 2025 InjectGuard
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Sink writes detection events to Amazon S3 as JSONL batch objects.
// Object keys are date-partitioned (prefix/YYYY/MM/DD/...) so downstream
// query engines can prune by day. S3-compatible stores (MinIO, R2) are
// supported through the endpoint option.
type S3Sink struct {
	config *Config
	client *s3.Client
	bucket string
	prefix string
	logger *log.Logger
}

// NewS3Sink creates a new S3 sink instance
func NewS3Sink() *S3Sink {
	return &S3Sink{
		logger: log.New(os.Stdout, "[SINK_S3] ", log.LstdFlags),
	}
}

// Connect builds the S3 client and verifies bucket access
func (s *S3Sink) Connect(ctx context.Context, config *Config) error {
	s.config = config

	s.bucket = config.GetOption("bucket", "")
	if s.bucket == "" {
		return NewSinkError(config.Name, "Connect", "bucket option is required", nil)
	}
	s.prefix = config.GetOption("prefix", "detections")

	region := config.GetOption("region", "us-east-1")
	endpoint := config.GetOption("endpoint", "")
	forcePathStyle := config.GetBoolOption("force_path_style", false)

	accessKeyID := config.GetCredential("access_key_id")
	secretAccessKey := config.GetCredential("secret_access_key")
	sessionToken := config.GetCredential("session_token")

	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	// Use explicit credentials if provided, otherwise the default chain
	if accessKeyID != "" && secretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
		optFns = append(optFns, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return NewSinkError(config.Name, "Connect", "failed to load AWS config", err)
	}

	s3Options := []func(*s3.Options){}
	if endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if forcePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	s.client = s3.NewFromConfig(awsCfg, s3Options...)

	_, err = s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return NewSinkError(config.Name, "Connect", "failed to verify bucket access", err)
	}

	s.logger.Printf("Connected to S3 (region: %s, bucket: %s, prefix: %s)", region, s.bucket, s.prefix)

	return nil
}

// Write uploads the batch as one JSONL object
func (s *S3Sink) Write(ctx context.Context, events []Event) error {
	if s.client == nil {
		return NewSinkError(s.Name(), "Write", "S3 client not initialized", nil)
	}
	if len(events) == 0 {
		return nil
	}

	body, err := encodeJSONL(events)
	if err != nil {
		return NewSinkError(s.Name(), "Write", "failed to encode batch", err)
	}

	key := batchObjectKey(s.prefix, time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, s.config.timeoutOrDefault())
	defer cancel()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return NewSinkError(s.Name(), "Write", fmt.Sprintf("failed to put object: %s", key), err)
	}

	return nil
}

// HealthCheck verifies bucket access
func (s *S3Sink) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if s.client == nil {
		return &HealthStatus{
			Healthy:   false,
			Error:     "S3 client not initialized",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	latency := time.Since(start)

	if err != nil {
		return &HealthStatus{
			Healthy:   false,
			Error:     err.Error(),
			Latency:   latency,
			Timestamp: time.Now(),
		}, nil
	}

	return &HealthStatus{
		Healthy: true,
		Latency: latency,
		Details: map[string]string{
			"bucket": s.bucket,
			"prefix": s.prefix,
			"region": s.config.GetOption("region", "us-east-1"),
		},
		Timestamp: time.Now(),
	}, nil
}

// Close releases the S3 client
func (s *S3Sink) Close(ctx context.Context) error {
	s.client = nil
	return nil
}

// Name returns the sink instance name
func (s *S3Sink) Name() string {
	if s.config != nil && s.config.Name != "" {
		return s.config.Name
	}
	return "s3"
}

// Type returns the sink type
func (s *S3Sink) Type() string {
	return "s3"
}

// encodeJSONL renders events as newline-delimited JSON
func encodeJSONL(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// batchObjectKey builds a date-partitioned object key:
// prefix/2026/01/31/events-20260131T120502Z-1a2b3c4d.jsonl
func batchObjectKey(prefix string, now time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/events-%s-%s.jsonl",
		prefix,
		now.Year(), int(now.Month()), now.Day(),
		now.Format("20060102T150405Z"),
		uuid.New().String()[:8],
	)
}

// Verify S3Sink implements Sink
var _ Sink = (*S3Sink)(nil)
