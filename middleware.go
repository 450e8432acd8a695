// Package servex provides a fast, extensible web framework for Go inspired
// by Express.js.
//
// This file contains built-in middleware: request logging (with optional
// rotating-file output via lumberjack), panic recovery, CORS, and request
// ID propagation.
package servex

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig defines configuration options for the logger middleware.
type LoggerConfig struct {
	// SkipPaths is a list of URL paths to skip logging for. Supports exact
	// matches and simple wildcard patterns with *.
	SkipPaths []string

	// Output specifies where to write the log output. If nil, defaults to
	// os.Stdout. Pass a *lumberjack.Logger (see NewRotatingLogWriter) for
	// size/age-based rotation instead of an unbounded file.
	Output io.Writer

	// Formatter specifies a function to format log entries. If nil,
	// defaults to DefaultLogFormatter.
	Formatter LogFormatter
}

// LogFormatter formats one request's log entry.
type LogFormatter func(c *Context, start time.Time, duration time.Duration) string

// DefaultLogFormatter returns "[METHOD] path clientAddr status duration\n".
func DefaultLogFormatter(c *Context, start time.Time, duration time.Duration) string {
	return fmt.Sprintf("[%s] %s %s %d %v\n",
		c.Request.Method,
		c.Request.URL.Path,
		c.Request.RemoteAddr,
		c.Status(),
		duration,
	)
}

// NewRotatingLogWriter wraps lumberjack.Logger for use as a LoggerConfig.Output,
// rotating the file once it exceeds maxSizeMB and pruning backups older than
// maxAgeDays or beyond maxBackups.
func NewRotatingLogWriter(filename string, maxSizeMB, maxBackups, maxAgeDays int) io.Writer {
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}

// matchPath reports whether path matches any of the skip patterns, using
// filepath glob syntax and a fallback simple '*' wildcard match.
func matchPath(path string, skipPaths []string) bool {
	for _, pattern := range skipPaths {
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
		if strings.Contains(pattern, "*") {
			if simpleWildcardMatch(path, pattern) {
				return true
			}
		} else if path == pattern {
			return true
		}
	}
	return false
}

func simpleWildcardMatch(path, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return path == pattern
	}
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	if !strings.HasSuffix(path, parts[len(parts)-1]) {
		return false
	}
	remaining := path
	for i, part := range parts {
		if i == 0 {
			remaining = remaining[len(part):]
			continue
		}
		if i == len(parts)-1 {
			break
		}
		idx := strings.Index(remaining, part)
		if idx == -1 {
			return false
		}
		remaining = remaining[idx+len(part):]
	}
	return true
}

// Logger returns a middleware that logs each request's method, path, client
// address, status, and processing time to stdout.
func Logger() Handler {
	return LoggerWithConfig(LoggerConfig{})
}

// LoggerWithConfig returns a Logger middleware with skip paths, output
// destination, and formatter overridable.
func LoggerWithConfig(config LoggerConfig) Handler {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Formatter == nil {
		config.Formatter = DefaultLogFormatter
	}
	stdLogger := log.New(config.Output, "", log.LstdFlags)

	return func(c *Context) {
		if matchPath(c.Request.URL.Path, config.SkipPaths) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		entry := config.Formatter(c, start, duration)
		if config.Output != os.Stdout {
			config.Output.Write([]byte(entry))
		} else {
			stdLogger.Print(entry)
		}
	}
}

// Recover returns a middleware that recovers from panics occurring in
// downstream handlers, records the recovered value via Context.Error, and
// commits a 500 response if nothing has committed one yet. Outer handlers
// on the call stack still run their post-Next code as the recovery unwinds.
//
// The Chain Executor itself also recovers any panic that escapes the whole
// chain (spec.md §4.2); this middleware exists so an application can recover
// closer to the failing handler and keep running sibling middleware that
// would otherwise never get a chance to execute their post-Next code.
func Recover() Handler {
	return func(c *Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("servex: panic recovered: %v", r)

				var err error
				if e, ok := r.(error); ok {
					err = e
				} else {
					err = fmt.Errorf("%v", r)
				}
				c.Error(err)
				c.commit(internalErrorResponse())
			}
		}()
		c.Next()
	}
}

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	AllowAllOrigins  bool
	AllowOriginFunc  func(origin string) bool
}

func defaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:         3600,
	}
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing,
// including replying to preflight OPTIONS requests with 204. Configuration
// is restrictive by default: no origins are allowed until AllowedOrigins,
// AllowAllOrigins, or AllowOriginFunc is set.
func CORS(config ...CORSConfig) Handler {
	cfg := defaultCORSConfig()
	if len(config) > 0 {
		user := config[0]
		if len(user.AllowedOrigins) > 0 {
			cfg.AllowedOrigins = user.AllowedOrigins
		}
		if len(user.AllowedMethods) > 0 {
			cfg.AllowedMethods = user.AllowedMethods
		}
		if len(user.AllowedHeaders) > 0 {
			cfg.AllowedHeaders = user.AllowedHeaders
		}
		cfg.ExposedHeaders = user.ExposedHeaders
		cfg.AllowCredentials = user.AllowCredentials
		if user.MaxAge != 0 {
			cfg.MaxAge = user.MaxAge
		}
		cfg.AllowAllOrigins = user.AllowAllOrigins
		cfg.AllowOriginFunc = user.AllowOriginFunc
	}

	allowedMethodsHeader := strings.Join(cfg.AllowedMethods, ", ")
	allowedHeadersHeader := strings.Join(cfg.AllowedHeaders, ", ")
	exposedHeadersHeader := strings.Join(cfg.ExposedHeaders, ", ")
	maxAgeHeader := strconv.Itoa(cfg.MaxAge)

	return func(c *Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowedOrigin := ""
		switch {
		case cfg.AllowAllOrigins:
			allowedOrigin = "*"
		case cfg.AllowOriginFunc != nil:
			if cfg.AllowOriginFunc(origin) {
				allowedOrigin = origin
			}
		default:
			for _, o := range cfg.AllowedOrigins {
				if o == origin {
					allowedOrigin = origin
					break
				}
			}
		}

		if allowedOrigin == "" {
			c.Next()
			return
		}

		if cfg.AllowCredentials && allowedOrigin == "*" {
			c.Response.Header().Set("Access-Control-Allow-Origin", origin)
			c.Response.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			c.Response.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if cfg.AllowCredentials {
				c.Response.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if exposedHeadersHeader != "" {
			c.Response.Header().Set("Access-Control-Expose-Headers", exposedHeadersHeader)
		}

		if c.Request.Method == http.MethodOptions {
			c.Response.Header().Set("Access-Control-Allow-Methods", allowedMethodsHeader)
			c.Response.Header().Set("Access-Control-Allow-Headers", allowedHeadersHeader)
			c.Response.Header().Set("Access-Control-Max-Age", maxAgeHeader)
			c.commit(Response{Status: http.StatusNoContent})
			return
		}

		c.Next()
	}
}

const requestIDLocalKey = "servex.request_id"

// RequestIDConfig configures the RequestID middleware.
type RequestIDConfig struct {
	// Header is the header name used both to read a client-supplied ID and
	// to write the generated/accepted ID on the response. Defaults to
	// "X-Request-Id".
	Header string

	// AllowClientID accepts an incoming request's own header value instead
	// of always generating a fresh one. True when RequestID is called
	// without a config; a supplied config's value is used as given.
	AllowClientID bool

	// Generator produces a new ID when none is accepted from the client.
	// Defaults to uuid.NewString.
	Generator func() string
}

// RequestID returns a middleware that assigns a unique ID to each request,
// storing it in Context.Locals under "servex.request_id" and echoing it in
// the response header, for correlating logs across a request's lifetime.
func RequestID(config ...RequestIDConfig) Handler {
	cfg := RequestIDConfig{Header: "X-Request-Id", AllowClientID: true, Generator: uuid.NewString}
	if len(config) > 0 {
		user := config[0]
		if user.Header != "" {
			cfg.Header = user.Header
		}
		cfg.AllowClientID = user.AllowClientID
		if user.Generator != nil {
			cfg.Generator = user.Generator
		}
	}

	return func(c *Context) {
		var id string
		if cfg.AllowClientID {
			id = c.Request.Header.Get(cfg.Header)
		}
		if id == "" {
			id = cfg.Generator()
		}
		c.Response.Header().Set(cfg.Header, id)
		c.SetLocal(requestIDLocalKey, id)
		c.Next()
	}
}

// RequestIDFromContext retrieves the ID assigned by RequestID, or "" if that
// middleware did not run for this request.
func RequestIDFromContext(c *Context) string {
	if v, ok := c.Locals(requestIDLocalKey).(string); ok {
		return v
	}
	return ""
}
