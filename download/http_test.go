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

package download

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type bufSink struct {
	buf bytes.Buffer
	err error
}

func (s *bufSink) Write(p []byte) error {
	if s.err != nil {
		return s.err
	}
	s.buf.Write(p)
	return nil
}

func TestDownloadStreamsWholeBody(t *testing.T) {
	body := bytes.Repeat([]byte("firmware-chunk-"), 500) // larger than ReceiveBufferSize
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	d := &HTTPDownloader{}
	sink := &bufSink{}
	n, err := d.Download(context.Background(), srv.URL, sink)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != int64(len(body)) {
		t.Fatalf("Download returned %d, want %d", n, len(body))
	}
	if !bytes.Equal(sink.buf.Bytes(), body) {
		t.Fatalf("sink did not receive the full body")
	}
}

func TestDownloadNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := &HTTPDownloader{}
	if _, err := d.Download(context.Background(), srv.URL, &bufSink{}); err == nil {
		t.Fatalf("Download against 404 succeeded, want error")
	}
}

func TestDownloadSinkErrorAborts(t *testing.T) {
	body := bytes.Repeat([]byte{0x42}, 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	d := &HTTPDownloader{}
	sink := &bufSink{err: fmt.Errorf("flash full")}
	_, err := d.Download(context.Background(), srv.URL, sink)
	if err == nil {
		t.Fatalf("Download with failing sink succeeded, want error")
	}
}
