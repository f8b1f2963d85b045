package dark

import "github.com/launchdarkly/go-sdk-common/v3/ldlog"

// testLoggers returns a Loggers value safe for use in tests without any
// output configured -- the zero value of ldlog.Loggers is itself safe to
// use (it falls back to an internal default base logger), so this mostly
// documents intent at call sites.
func testLoggers() ldlog.Loggers {
	return ldlog.Loggers{}
}
