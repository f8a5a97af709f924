// Copyright 2023 The Armored Witness authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/coreos/go-semver/semver"
	"k8s.io/klog/v2"

	"github.com/usbarmory/armory-fota-updater/download"
	"github.com/usbarmory/armory-fota-updater/internal/bootselector"
	"github.com/usbarmory/armory-fota-updater/internal/flashtarget"
	"github.com/usbarmory/armory-fota-updater/manifest"
	"github.com/usbarmory/armory-fota-updater/update"
)

// localReadBufferSize is the chunk size used when streaming a firmware
// image in from a local path, matching download.ReceiveBufferSize so the
// two source kinds behave identically from the engine's point of view.
const localReadBufferSize = download.ReceiveBufferSize

// isRemote reports whether image names an http(s) URL rather than a
// local path.
func isRemote(image string) bool {
	u, err := url.Parse(image)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// buildBundle constructs the manifest.Bundle describing -image, if the
// caller supplied version metadata for it. It is nil when -bundle_version
// is unset, which keeps ad hoc local-file installs during development
// free of manifest bookkeeping.
func buildBundle(image, version, sha256Hex string, sizeHint int64) (*manifest.Bundle, error) {
	if version == "" {
		return nil, nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("-bundle_version %q: %w", version, err)
	}
	return &manifest.Bundle{
		Version:  *v,
		URL:      image,
		SizeHint: sizeHint,
		SHA256:   sha256Hex,
	}, nil
}

const fileDeviceBlockSize = 512

// fileDevice adapts a flat local file to flashtarget.BlockDevice, growing
// the file as needed. It exists only so this tool can exercise the real
// engine, Flash Target and Boot Selector without real flash hardware.
type fileDevice struct {
	f *os.File
}

func openFileDevice(path string, numBlocks uint) (*fileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	size := int64(numBlocks) * fileDeviceBlockSize
	if err := f.Truncate(size); err != nil {
		return nil, fmt.Errorf("truncate %q: %w", path, err)
	}
	return &fileDevice{f: f}, nil
}

func (d *fileDevice) BlockSize() uint {
	return fileDeviceBlockSize
}

func (d *fileDevice) ReadBlocks(lba uint, b []byte) error {
	_, err := d.f.ReadAt(b, int64(lba)*fileDeviceBlockSize)
	return err
}

func (d *fileDevice) WriteBlocks(lba uint, b []byte) (uint, error) {
	if r := len(b) % fileDeviceBlockSize; r != 0 {
		b = append(b, make([]byte, fileDeviceBlockSize-r)...)
	}
	if _, err := d.f.WriteAt(b, int64(lba)*fileDeviceBlockSize); err != nil {
		return 0, err
	}
	return uint(len(b)) / fileDeviceBlockSize, nil
}

func runStatus(sel *bootselector.Selector) {
	slot, err := sel.ActiveSlot()
	if err != nil {
		klog.Exitf("fotactl: ActiveSlot: %v", err)
	}
	klog.Infof("fotactl: active slot is %d", slot)
}

func runActivateNext(target *flashtarget.Target, boot *bootselector.Selector) {
	engine := update.NewEngine(target, boot)
	if err := engine.ActivateNextSlot(); err != nil {
		klog.Exitf("fotactl: ActivateNextSlot: %v", err)
	}
	klog.Infof("fotactl: activated pre-installed image on the previously inactive slot")
}

// runAbort calls Abort on a freshly constructed Engine. The lock and the
// transaction exist only in process memory, so a transaction left open by
// an earlier fotactl process (e.g. a `fotactl -image ...` run killed
// mid-transfer) is not visible here: Abort finds no active transaction and
// the command exits reporting ErrNotRunning. Nothing on the flash is
// changed.
func runAbort(target *flashtarget.Target, boot *bootselector.Selector) {
	engine := update.NewEngine(target, boot)
	if err := engine.Abort(); err != nil {
		klog.Exitf("fotactl: Abort: %v", err)
	}
	klog.Infof("fotactl: transaction aborted, lock released")
}

func runUpdate(ctx context.Context, target *flashtarget.Target, boot *bootselector.Selector, image string, magic []byte, bundle *manifest.Bundle, installedVersion string) {
	engine := update.NewEngine(target, boot)

	if len(magic) > 0 {
		if err := engine.SetMagic(magic); err != nil {
			klog.Exitf("fotactl: SetMagic: %v", err)
		}
	}

	if isRemote(image) {
		runUpdateFromURL(ctx, engine, image, bundle, installedVersion)
		return
	}
	runUpdateFromFile(engine, image)
}

// runUpdateFromURL streams the firmware at url into engine. If bundle is
// non-nil it is validated and checked against installedVersion first, so
// a manifest entry for an image no newer than what's already installed
// is skipped without ever opening a transaction; bundle.SizeHint, when
// known, is passed to Begin instead of update.SizeUnknown so the Flash
// Target can size its write session up front.
func runUpdateFromURL(ctx context.Context, engine *update.Engine, url string, bundle *manifest.Bundle, installedVersion string) {
	sizeHint := update.SizeUnknown

	if bundle != nil {
		if err := bundle.Validate(); err != nil {
			klog.Exitf("fotactl: %v", err)
		}
		installed, err := semver.NewVersion(installedVersion)
		if err != nil {
			klog.Exitf("fotactl: -installed_version %q: %v", installedVersion, err)
		}
		if !bundle.NewerThan(*installed) {
			klog.Infof("fotactl: bundle version %s is not newer than installed %s, skipping", bundle.Version, installed)
			return
		}
		sizeHint = bundle.SizeHint
	}

	if err := engine.Begin(sizeHint, nil); err != nil {
		klog.Exitf("fotactl: Begin: %v", err)
	}

	d := &download.HTTPDownloader{ShowProgress: true}
	n, err := d.Download(ctx, url, engine)
	if err != nil {
		if aerr := engine.Abort(); aerr != nil {
			klog.Warningf("fotactl: Abort after failed download: %v", aerr)
		}
		klog.Exitf("fotactl: Download: %v", err)
	}
	klog.Infof("fotactl: downloaded %d bytes", n)

	finishOrExit(engine)
}

func runUpdateFromFile(engine *update.Engine, path string) {
	f, err := os.Open(path)
	if err != nil {
		klog.Exitf("fotactl: %v", err)
	}
	defer f.Close()

	size := update.SizeUnknown
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	if err := engine.Begin(size, nil); err != nil {
		klog.Exitf("fotactl: Begin: %v", err)
	}

	buf := make([]byte, localReadBufferSize)
	var total int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if werr := engine.Write(buf[:n]); werr != nil {
				if aerr := engine.Abort(); aerr != nil {
					klog.Warningf("fotactl: Abort after failed write: %v", aerr)
				}
				klog.Exitf("fotactl: Write: %v", werr)
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if aerr := engine.Abort(); aerr != nil {
				klog.Warningf("fotactl: Abort after failed read: %v", aerr)
			}
			klog.Exitf("fotactl: reading %q: %v", path, rerr)
		}
	}
	klog.Infof("fotactl: read %d bytes from %q", total, path)

	finishOrExit(engine)
}

func finishOrExit(engine *update.Engine) {
	if err := engine.Finish(); err != nil {
		klog.Exitf("fotactl: Finish: %v", err)
	}
	klog.Infof("fotactl: update committed")
}
