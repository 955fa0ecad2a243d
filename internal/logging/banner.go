package logging

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
)

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	cyan   = "\033[36m"
	green  = "\033[32m"
	dim    = "\033[2m"
)

// logoLines is the sinain-core ASCII wordmark.
var logoLines = [5]string{
	` ___ _ __   __ _(_)_ __  `,
	`/ __| '_ \ / _` + "`" + ` | | '_ \ `,
	`\__ \ | | | (_| | | | | |`,
	`|___/_| |_|\__,_|_|_| |_|`,
	`   ambient-context broker`,
}

// PrintBanner prints the sinain-core wordmark, version, and listen
// address. Colors are used only when stderr is a TTY.
func PrintBanner(ver, addr string) {
	color := isTTY()

	for _, line := range logoLines {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", bold+cyan, line, reset)
		} else {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %saddr%s %s\n\n", dim, reset, ver, dim, reset, addr)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   addr %s\n\n", ver, addr)
	}
}

// addrToURL converts a listen address (e.g. ":9500", "0.0.0.0:9500") into
// an http://localhost:<port> URL.
func addrToURL(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		port = strings.TrimPrefix(addr, ":")
	}
	if port == "" || port == "80" {
		return "http://localhost"
	}
	return "http://localhost:" + port
}

// PrintAccessURL prints the overlay's access URL and, on a TTY, a QR
// code a head-up display or phone can scan to pair with it.
func PrintAccessURL(addr string) {
	url := addrToURL(addr)

	if isTTY() {
		fmt.Fprintf(os.Stderr, "  %s%s➜%s  %s%s%s\n\n", bold, green, reset, bold, url, reset)
		qrterminal.GenerateWithConfig(url, qrConfig())
		fmt.Fprintln(os.Stderr)
	} else {
		fmt.Fprintf(os.Stderr, "  ➜  %s\n\n", url)
	}
}

func qrConfig() qrterminal.Config {
	return qrterminal.Config{
		Level:          qrterminal.L,
		Writer:         os.Stderr,
		QuietZone:      1,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
	}
}
