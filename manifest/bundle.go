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

// Package manifest describes the metadata that accompanies a firmware
// image as it moves from a release feed through the downloader and into
// the update engine.
package manifest

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
)

// Bundle is the metadata the downloader resolves before it ever touches
// the image bytes: where to fetch them from, how many bytes to expect,
// and the version they claim to be. The image bytes themselves are
// streamed straight into the engine's ByteSink and never held in the
// Bundle.
type Bundle struct {
	// Version is the semantic version carried by this firmware image.
	Version semver.Version
	// URL is the location the downloader fetches Firmware bytes from.
	URL string
	// SizeHint is the expected size in bytes of the firmware image,
	// or update.SizeUnknown if the server did not advertise a
	// Content-Length.
	SizeHint int64
	// SHA256 is a hex-encoded digest of the whole image (appendix
	// included). It is carried as metadata only: neither the downloader
	// nor fotactl checks the image against it, and it is independent of
	// the Appendix Verifier's own signature check.
	SHA256 string
}

// NewerThan reports whether this Bundle's version is strictly newer than
// installed.
func (b Bundle) NewerThan(installed semver.Version) bool {
	return installed.LessThan(b.Version)
}

// Validate checks that a Bundle parsed from a release feed has the fields
// an update attempt requires.
func (b Bundle) Validate() error {
	if b.URL == "" {
		return fmt.Errorf("manifest: bundle has no URL")
	}
	if b.Version.String() == "0.0.0" {
		return fmt.Errorf("manifest: bundle has no version")
	}
	return nil
}
