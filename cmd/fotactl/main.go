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
//
// The fotactl tool drives a firmware update transaction against a
// file-backed simulated dual-slot flash, only useful for development and
// integration testing off real hardware.
package main

import (
	"context"
	"flag"

	"k8s.io/klog/v2"

	"github.com/usbarmory/armory-fota-updater/internal/bootselector"
	"github.com/usbarmory/armory-fota-updater/internal/flashtarget"
)

var (
	flashFile  = flag.String("flash_file", "", "path to a local file backing the simulated dual-slot flash")
	slotBlocks = flag.Uint("slot_blocks", 2048, "number of 512-byte blocks reserved per slot")

	image = flag.String("image", "", "path or http(s) URL of the firmware image to install, for the update subcommand")
	magic = flag.String("magic", "", "expected magic marker near the tail of the image")

	bundleVersion    = flag.String("bundle_version", "", "semantic version of the image named by -image; if set and -image is an http(s) URL, a manifest.Bundle is validated and the update is skipped unless this is newer than -installed_version (ignored for local paths)")
	bundleSHA256     = flag.String("bundle_sha256", "", "expected hex sha256 digest of the whole image named by -image, carried on the manifest.Bundle but not independently checked by this tool")
	bundleSizeHint   = flag.Int64("bundle_size", -1, "expected size in bytes of the image named by -image, or -1 if unknown")
	installedVersion = flag.String("installed_version", "0.0.0", "semantic version currently installed, compared against -bundle_version")

	abort        = flag.Bool("abort", false, "call Abort on a new engine; the lock lives in process memory, so a transaction left by an earlier run is not seen and this reports that none is active")
	activateNext = flag.Bool("activate_next", false, "activate the inactive slot without writing a new image")
	showStatus   = flag.Bool("status", false, "print the currently active slot and exit")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *flashFile == "" {
		klog.Exit("fotactl: -flash_file is required")
	}

	dev, err := openFileDevice(*flashFile, *slotBlocks*2+2)
	if err != nil {
		klog.Exitf("fotactl: %v", err)
	}

	geo := flashtarget.Geometry{Start: 0, Length: *slotBlocks * 2, SlotLengths: []uint{*slotBlocks, *slotBlocks}}
	sel, err := bootselector.New(dev, *slotBlocks*2, *slotBlocks*2+1)
	if err != nil {
		klog.Exitf("fotactl: bootselector.New: %v", err)
	}

	target, err := flashtarget.NewTarget(dev, geo, sel)
	if err != nil {
		klog.Exitf("fotactl: flashtarget.NewTarget: %v", err)
	}

	switch {
	case *showStatus:
		runStatus(sel)
	case *abort:
		runAbort(target, sel)
	case *activateNext:
		runActivateNext(target, sel)
	case *image != "":
		bundle, err := buildBundle(*image, *bundleVersion, *bundleSHA256, *bundleSizeHint)
		if err != nil {
			klog.Exitf("fotactl: %v", err)
		}
		runUpdate(context.Background(), target, sel, *image, []byte(*magic), bundle, *installedVersion)
	default:
		flag.PrintDefaults()
	}
}
