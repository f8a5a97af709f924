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

package manifest

import (
	"testing"

	"github.com/coreos/go-semver/semver"
)

func TestBundleNewerThan(t *testing.T) {
	b := Bundle{Version: *semver.New("1.2.0"), URL: "https://example.invalid/fw.bin"}

	if !b.NewerThan(*semver.New("1.1.9")) {
		t.Fatalf("NewerThan(1.1.9) = false, want true")
	}
	if b.NewerThan(*semver.New("1.2.0")) {
		t.Fatalf("NewerThan(1.2.0) = true, want false")
	}
	if b.NewerThan(*semver.New("2.0.0")) {
		t.Fatalf("NewerThan(2.0.0) = true, want false")
	}
}

func TestBundleValidate(t *testing.T) {
	for _, test := range []struct {
		name    string
		b       Bundle
		wantErr bool
	}{
		{name: "valid", b: Bundle{Version: *semver.New("1.0.0"), URL: "https://example.invalid/fw.bin"}},
		{name: "no URL", b: Bundle{Version: *semver.New("1.0.0")}, wantErr: true},
		{name: "no version", b: Bundle{URL: "https://example.invalid/fw.bin"}, wantErr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := test.b.Validate()
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, test.wantErr)
			}
		})
	}
}
