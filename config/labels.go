// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"

	"github.com/grailbio/stencil/errors"
)

func init() {
	Register(Labels, "kv", "labels", "comma separated list of key=value labels",
		func(cfg Config, arg string) (Config, error) {
			return parseLabels(cfg, arg)
		})
}

type labels struct {
	Config
	m map[string]string
}

func parseLabels(cfg Config, arg string) (Config, error) {
	l := &labels{cfg, make(map[string]string)}
	for _, kv := range strings.Split(arg, ",") {
		s := strings.Split(kv, "=")
		if len(s) != 2 || len(s[0]) == 0 || len(s[1]) == 0 {
			return nil, errors.E("labels", errors.Invalid, fmt.Errorf("invalid label %q", kv))
		}
		l.m[s[0]] = s[1]
	}
	return l, nil
}

func (l *labels) Labels() map[string]string {
	return l.m
}
