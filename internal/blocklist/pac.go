package blocklist

import (
	"fmt"
	"strconv"
	"strings"
)

// IPv4Only keeps the plain IPv4 addresses from a parsed entry list.
// PAC-based blocking works on resolved addresses, so domains and CIDR
// ranges are dropped.
func IPv4Only(entries []string) []string {
	var ips []string
	for _, e := range entries {
		if Classify(e) == KindIPv4 {
			ips = append(ips, e)
		}
	}
	return ips
}

const pacTemplate = `
    var BLOCKED_IPS = [
    %s
    ];

    var BLOCKED_DICT = {};
    for (var i = 0; i < BLOCKED_IPS.length; i++) {
        BLOCKED_DICT[BLOCKED_IPS[i]] = true;
    }

    // A non-routable proxy so blocked connections fail.
    var BLOCK_PROXY = "PROXY 127.0.0.1:9999";
    var DIRECT = "DIRECT";

    function FindProxyForURL(url, host) {
        var ip = dnsResolve(host);
        if (ip == null) {
            return DIRECT;
        }

        if (BLOCKED_DICT[ip] === true) {
            return BLOCK_PROXY;
        }

        return DIRECT;
    }
`

// PACFile renders a proxy auto-config script that routes the given IPs
// into a blackhole proxy and everything else direct.
func PACFile(ips []string) string {
	quoted := make([]string, len(ips))
	for i, ip := range ips {
		quoted[i] = strconv.Quote(ip)
	}
	return fmt.Sprintf(pacTemplate, strings.Join(quoted, ","))
}
