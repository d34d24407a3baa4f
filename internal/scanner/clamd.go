// Copyright 2024 The scanfuse Authors. All Rights Reserved.
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

package scanner

import (
	"fmt"
	"path/filepath"

	clamd "github.com/dutchcoders/go-clamd"
)

// Config describes how to reach clamd and which names to wave through.
type Config struct {
	// Address of the clamd socket, e.g. "/var/run/clamav/clamd.ctl" or
	// "tcp://127.0.0.1:3310".
	Address string

	// Basenames that always get the Whitelisted verdict instead of being
	// scanned. The clamd protocol only distinguishes OK from FOUND, so the
	// whitelist lives on this side of the socket.
	Allowlist []string
}

// DefaultAddress is where distro packages usually put the clamd socket.
const DefaultAddress = "/var/run/clamav/clamd.ctl"

type clamdScanner struct {
	conn      *clamd.Clamd
	allowlist map[string]struct{}
}

// NewClamd builds a clamd-backed scanner. No connection is made here; clamd
// dials per command, so a slow or absent daemon shows up on first use rather
// than blocking dispatcher startup.
func NewClamd(cfg Config) Scanner {
	address := cfg.Address
	if address == "" {
		address = DefaultAddress
	}

	allowlist := make(map[string]struct{}, len(cfg.Allowlist))
	for _, name := range cfg.Allowlist {
		allowlist[name] = struct{}{}
	}

	return &clamdScanner{
		conn:      clamd.NewClamd(address),
		allowlist: allowlist,
	}
}

func (s *clamdScanner) Scan(path string) (Verdict, error) {
	if _, ok := s.allowlist[base(path)]; ok {
		return Whitelisted, nil
	}

	results, err := s.conn.ScanFile(path)
	if err != nil {
		return Infected, fmt.Errorf("clamd scan of %q: %w", path, err)
	}

	// clamd replies once per scanned path; a FOUND on any reply condemns the
	// file.
	verdict := Clean
	for r := range results {
		switch r.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			verdict = Infected
		default:
			return Infected, fmt.Errorf("clamd scan of %q: %s: %s", path, r.Status, r.Description)
		}
	}

	return verdict, nil
}

func base(path string) string {
	return filepath.Base(path)
}
