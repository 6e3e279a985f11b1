// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package all imports all standard configuration providers.
package all

import (
	_ "github.com/grailbio/stencil/config/localconfig"
	_ "github.com/grailbio/stencil/config/otelconfig"
	_ "github.com/grailbio/stencil/config/promconfig"
	_ "github.com/grailbio/stencil/config/staticconfig"
)
