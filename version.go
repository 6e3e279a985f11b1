// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stencil

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the version of the stencil wire protocol spoken by this
// build. Coordinators refuse node agents whose major version differs.
const Version = "stencil1.0.0"

// IsSemVer returns whether v is a valid stencil version: a semantic
// version (https://semver.org/), optionally prefixed by "stencil",
// whose leading "v" may be omitted.
func IsSemVer(v string) bool {
	return semver.IsValid(toSemver(v))
}

// CompatibleVersions tells whether two stencil versions share a major
// version. Invalid versions are never compatible.
func CompatibleVersions(v1, v2 string) bool {
	if !IsSemVer(v1) || !IsSemVer(v2) {
		return false
	}
	return semver.Major(toSemver(v1)) == semver.Major(toSemver(v2))
}

func toSemver(v string) string {
	v = strings.TrimPrefix(v, "stencil")
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
