//go:build windows
// +build windows

// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cacheitem

import "strings"

// volumeNameLen returns length of the leading volume name on Windows.
func volumeNameLen(path string) int {
	if len(path) < 2 {
		return 0
	}
	c := path[0]
	if path[1] == ':' && ('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
		return 2
	}
	if l := len(path); l >= 5 && (path[0] == '\\' || path[0] == '/') && (path[1] == '\\' || path[1] == '/') {
		if strings.ContainsAny(path[2:l], `\/`) {
			if i := strings.IndexAny(path[2:l], `\/`); i > 0 {
				prefix := path[2 : 2+i]
				suffix := path[2+i+1:]
				if j := strings.IndexAny(suffix, `\/`); j >= 0 {
					return 2 + i + 1 + j
				}
				return len(prefix) + len(suffix) + 3
			}
		}
	}
	return 0
}
