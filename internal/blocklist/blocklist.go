// Package blocklist parses block-list files in the formats circulating
// as public threat feeds: one entry per line, comments with '#' or '!',
// entries that may be bare domains, wildcard domains, IPv4 addresses or
// IPv4 CIDR ranges, often embedded in hosts-file or adblock syntax. The
// longest plausible match on each line wins.
package blocklist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// EntryKind classifies a block-list entry.
type EntryKind int

const (
	KindUnknown EntryKind = iota
	KindIPv4
	KindCIDR
	KindDomain
)

var (
	// Standard domain: "example.com", "sub-domain.co.uk".
	domainRe = regexp.MustCompile(`([A-Za-z0-9-]+\.)+([A-Za-z]{2,})+`)

	// Wildcard domain: "*.example.com".
	wildcardDomainRe = regexp.MustCompile(`\*\.([A-Za-z0-9-]+\.)*([A-Za-z]{2,})+`)

	// IPv4 address: "192.168.0.1", "255.255.255.255".
	ipv4Re = regexp.MustCompile(`(?:25[0-5]|2[0-4]\d|[01]?\d?\d)(?:\.(?:25[0-5]|2[0-4]\d|[01]?\d?\d)){3}`)

	// IPv4 subnet in CIDR notation.
	ipv4NetRe = regexp.MustCompile(`(?:25[0-5]|2[0-4]\d|[01]?\d?\d)(?:\.(?:25[0-5]|2[0-4]\d|[01]?\d?\d)){3}/(?:[0-9]|[12]\d|3[0-2])`)
)

// Classify determines what kind of block entry a candidate string is.
func Classify(candidate string) EntryKind {
	if addr, err := netip.ParseAddr(candidate); err == nil && addr.Is4() {
		return KindIPv4
	}
	// Host bits may be set ("192.168.0.1/24" counts as a subnet).
	if prefix, err := netip.ParsePrefix(candidate); err == nil && prefix.Addr().Is4() {
		return KindCIDR
	}
	if domainRe.MatchString(candidate) || wildcardDomainRe.MatchString(candidate) {
		return KindDomain
	}
	return KindUnknown
}

// longestMatch scans a line for every domain, wildcard-domain, IPv4 and
// CIDR occurrence and returns the longest one, or "" when nothing matches.
func longestMatch(line string) string {
	var best string
	for _, re := range []*regexp.Regexp{domainRe, wildcardDomainRe, ipv4Re, ipv4NetRe} {
		for _, m := range re.FindAllString(line, -1) {
			if len(m) > len(best) {
				best = m
			}
		}
	}
	return best
}

// Stats summarises a parse run.
type Stats struct {
	Total   int
	Skipped int
	Parsed  int
	Failed  int

	IPv4    int
	CIDR    int
	Domains int
}

// Report writes the stats in the report layout the sample tooling prints.
func (s Stats) Report(w io.Writer) {
	fmt.Fprintf(w, "Total   lines: %d\n", s.Total)
	fmt.Fprintf(w, "Skipped lines: %d\n", s.Skipped)
	fmt.Fprintf(w, "Success lines: %d\n", s.Parsed)
	fmt.Fprintf(w, "Failed  lines: %d\n", s.Failed)
	fmt.Fprintf(w, "   IPv4 addrs: %d\n", s.IPv4)
	fmt.Fprintf(w, "   IPv4subnet: %d\n", s.CIDR)
	fmt.Fprintf(w, "      Domains: %d\n", s.Domains)
}

// Parse extracts block entries from r, one candidate per line. Lines that
// are empty or start with '#' or '!' are skipped; lines with no match are
// counted as failed and logged.
func Parse(ctx context.Context, r io.Reader) ([]string, Stats, error) {
	logger := ctxlog.FromContext(ctx)

	var entries []string
	var stats Stats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		stats.Total++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			stats.Skipped++
			continue
		}

		candidate := strings.TrimSpace(longestMatch(line))
		if candidate == "" {
			logger.Warn("failed to parse block-list line", "line", line)
			stats.Failed++
			continue
		}
		stats.Parsed++

		switch Classify(candidate) {
		case KindIPv4:
			stats.IPv4++
		case KindCIDR:
			stats.CIDR++
		case KindDomain:
			stats.Domains++
		}
		entries = append(entries, candidate)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("read block list: %w", err)
	}
	return entries, stats, nil
}

// fetchTimeout bounds the block-list download, matching the portal
// client's timeout.
var fetchTimeout = 30 * time.Second

// FetchAndParse downloads a block list over HTTP(S) and parses it.
func FetchAndParse(ctx context.Context, url string) ([]string, Stats, error) {
	client := resty.New().SetTimeout(fetchTimeout)
	defer client.Close()

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("fetch block list %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, Stats{}, fmt.Errorf("fetch block list %s: status %d", url, resp.StatusCode())
	}
	return Parse(ctx, strings.NewReader(resp.String()))
}
