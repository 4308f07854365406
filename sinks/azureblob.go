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
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureBlobSink writes detection events to Azure Blob Storage as JSONL
// batch blobs with date-partitioned names. Authentication supports
// connection strings, shared account keys, and DefaultAzureCredential
// (managed identity).
type AzureBlobSink struct {
	config      *Config
	client      *azblob.Client
	accountName string
	container   string
	prefix      string
	logger      *log.Logger
}

// NewAzureBlobSink creates a new Azure Blob sink instance
func NewAzureBlobSink() *AzureBlobSink {
	return &AzureBlobSink{
		logger: log.New(os.Stdout, "[SINK_AZUREBLOB] ", log.LstdFlags),
	}
}

// Connect builds the Azure client for the configured auth method
func (s *AzureBlobSink) Connect(ctx context.Context, config *Config) error {
	s.config = config

	s.container = config.GetOption("container", "")
	if s.container == "" {
		return NewSinkError(config.Name, "Connect", "container option is required", nil)
	}
	s.prefix = config.GetOption("prefix", "detections")
	s.accountName = config.GetOption("account_name", "")

	connectionString := config.GetCredential("connection_string")
	accountKey := config.GetCredential("account_key")

	var err error
	switch {
	case connectionString != "":
		s.client, err = azblob.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return NewSinkError(config.Name, "Connect", "failed to create client from connection string", err)
		}
	case accountKey != "":
		if s.accountName == "" {
			return NewSinkError(config.Name, "Connect", "account_name option is required with account_key", nil)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", s.accountName)
		cred, cerr := azblob.NewSharedKeyCredential(s.accountName, accountKey)
		if cerr != nil {
			return NewSinkError(config.Name, "Connect", "failed to create shared key credential", cerr)
		}
		s.client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return NewSinkError(config.Name, "Connect", "failed to create client", err)
		}
	default:
		// Managed identity / az login via DefaultAzureCredential
		if s.accountName == "" {
			return NewSinkError(config.Name, "Connect", "account_name option is required", nil)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", s.accountName)
		cred, cerr := azidentity.NewDefaultAzureCredential(nil)
		if cerr != nil {
			return NewSinkError(config.Name, "Connect", "failed to create default Azure credential", cerr)
		}
		s.client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return NewSinkError(config.Name, "Connect", "failed to create client", err)
		}
	}

	// Verify container access with a bounded listing
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	checkCtx, cancel := context.WithTimeout(ctx, config.timeoutOrDefault())
	defer cancel()
	if pager.More() {
		if _, err := pager.NextPage(checkCtx); err != nil {
			return NewSinkError(config.Name, "Connect", "failed to verify container access", err)
		}
	}

	s.logger.Printf("Connected to Azure Blob (account: %s, container: %s)", s.accountName, s.container)

	return nil
}

// Write uploads the batch as one JSONL blob
func (s *AzureBlobSink) Write(ctx context.Context, events []Event) error {
	if s.client == nil {
		return NewSinkError(s.Name(), "Write", "Azure client not initialized", nil)
	}
	if len(events) == 0 {
		return nil
	}

	body, err := encodeJSONL(events)
	if err != nil {
		return NewSinkError(s.Name(), "Write", "failed to encode batch", err)
	}

	blobName := batchObjectKey(s.prefix, time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, s.config.timeoutOrDefault())
	defer cancel()

	_, err = s.client.UploadBuffer(ctx, s.container, blobName, body, &azblob.UploadBufferOptions{})
	if err != nil {
		return NewSinkError(s.Name(), "Write", fmt.Sprintf("failed to upload blob: %s", blobName), err)
	}

	return nil
}

// HealthCheck verifies container access
func (s *AzureBlobSink) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if s.client == nil {
		return &HealthStatus{
			Healthy:   false,
			Error:     "Azure client not initialized",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	var err error
	if pager.More() {
		_, err = pager.NextPage(ctx)
	}
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
			"account_name": s.accountName,
			"container":    s.container,
			"prefix":       s.prefix,
		},
		Timestamp: time.Now(),
	}, nil
}

// Close releases the Azure client
func (s *AzureBlobSink) Close(ctx context.Context) error {
	s.client = nil
	return nil
}

// Name returns the sink instance name
func (s *AzureBlobSink) Name() string {
	if s.config != nil && s.config.Name != "" {
		return s.config.Name
	}
	return "azureblob"
}

// Type returns the sink type
func (s *AzureBlobSink) Type() string {
	return "azureblob"
}

// Verify AzureBlobSink implements Sink
var _ Sink = (*AzureBlobSink)(nil)
