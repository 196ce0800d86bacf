// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/diablo/pkg/diablo"
)

// validationLimits returns the firmware ceilings for the configured version
func validationLimits() diablo.Limits {
	lim := diablo.DefaultLimits()
	lim.Version = appConfig.Codec.Version
	return lim
}

func stamp(t time.Time) string {
	return t.Format("15:04:05.000")
}

// printPacket prints a decoded packet with its receive time
func printPacket(w io.Writer, at time.Time, p *diablo.Packet) {
	fmt.Fprintf(w, "[%s] %s", stamp(at), diablo.FormatPacket(p))
}

// printLinkError prints a dropped frame in highlighted format
func printLinkError(w io.Writer, at time.Time, err error) {
	fmt.Fprintf(w, "[%s] \033[1;31mLINK ERROR:\033[0m %v\n", stamp(at), err)
	fmt.Fprintf(w, "  >>> FRAME DROPPED <<<\n\n")
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(w io.Writer, at time.Time, raw []byte, err error) {
	fmt.Fprintf(w, "[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", stamp(at), err)
	if len(raw) > 0 {
		fmt.Fprint(w, indent(diablo.FormatHex(raw)))
	}
	fmt.Fprintf(w, "  >>> DECODE FAILED <<<\n\n")
}

// printValidationErrors prints validation errors for a packet
func printValidationErrors(w io.Writer, at time.Time, p *diablo.Packet, errs []diablo.ValidationError) {
	fmt.Fprintf(w, "[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n",
		stamp(at), diablo.FormatPacketType(p.Header.Type), uint8(p.Header.Type))

	for i, err := range errs {
		switch err.Type {
		case diablo.AnomalyInvalidCount, diablo.AnomalyOversize, diablo.AnomalyVersionMismatch:
			fmt.Fprintf(w, "  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
		default:
			fmt.Fprintf(w, "  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
		}
		for k, v := range err.Details {
			fmt.Fprintf(w, "    %s=%v\n", k, v)
		}
	}

	fmt.Fprintf(w, "  >>> PACKET FLAGGED <<<\n\n")
}

func indent(s string) string {
	out := make([]byte, 0, len(s)+16)
	start := true
	for i := 0; i < len(s); i++ {
		if start {
			out = append(out, ' ', ' ')
			start = false
		}
		out = append(out, s[i])
		if s[i] == '\n' {
			start = true
		}
	}
	return string(out)
}
