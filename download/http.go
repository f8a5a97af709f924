// Copyright 2023 The Armored Witness Applet authors. All Rights Reserved.
//
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

// Package download implements the external collaborator that feeds bytes
// into the update engine: an HTTP client that streams a firmware image
// into an update.ByteSink a chunk at a time, reporting progress as it
// goes.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cheggaaa/pb/v3"
	"k8s.io/klog/v2"

	"github.com/usbarmory/armory-fota-updater/update"
)

// ReceiveBufferSize is the size, in bytes, of each chunk read from the
// HTTP response body and handed to the ByteSink. It mirrors the
// receive-buffer size used by this codebase's earlier, ESP-IDF-based
// downloader.
const ReceiveBufferSize = 1024

// Timeout bounds the whole download, not just connection setup: a stalled
// server must not leave an update transaction open indefinitely while the
// process-wide lock is held.
var Timeout = 10 * time.Minute

// HTTPDownloader fetches a firmware image over HTTP and streams it into a
// Sink.
type HTTPDownloader struct {
	// Client is the HTTP client used for the request. If nil,
	// http.DefaultClient is used.
	Client *http.Client
	// ShowProgress enables a terminal progress bar
	// (github.com/cheggaaa/pb/v3), shown only when the response carries a
	// positive Content-Length.
	ShowProgress bool
}

// Download fetches url and writes its body to sink in ReceiveBufferSize
// chunks, returning the total number of bytes written. ctx bounds the
// whole transfer in addition to the package-level Timeout.
func (d *HTTPDownloader) Download(ctx context.Context, url string, sink update.ByteSink) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("download: building request: %w", err)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download: unexpected HTTP status %s", resp.Status)
	}

	klog.Infof("download: fetching %s (content-length %d)", url, resp.ContentLength)

	var bar *pb.ProgressBar
	if d.ShowProgress && resp.ContentLength > 0 {
		bar = pb.StartNew(int(resp.ContentLength))
		defer bar.Finish()
	}

	buf := make([]byte, ReceiveBufferSize)
	var total int64

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if werr := sink.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("download: writing %d bytes to sink: %w", n, werr)
			}
			total += int64(n)
			if bar != nil {
				bar.SetCurrent(total)
			}
			if resp.ContentLength > 0 {
				klog.V(2).Infof("download: %.2f%% | %d of %d bytes", (100.0*float64(total))/float64(resp.ContentLength), total, resp.ContentLength)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, fmt.Errorf("download: reading response body: %w", rerr)
		}
	}

	klog.Infof("download: completed, %d bytes written", total)
	return total, nil
}
