package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"anigiffy/internal/logging"
	"anigiffy/internal/session"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' https://cdn.jsdelivr.net; " +
	"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
	"font-src 'self' https://cdn.jsdelivr.net; " +
	"img-src 'self' data: blob:; " +
	"connect-src 'self'"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// accessLog records one line per request. Successful requests log at debug
// and are dropped by the level override.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		logger := logging.WithContext(r.Context(), s.access)
		attrs := logging.Args(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Int("bytes", rec.bytes),
			logging.Duration("elapsed", time.Since(start)),
		)
		switch {
		case rec.status >= 500:
			logger.Warn("request failed", attrs...)
		case rec.status >= 400:
			logger.Info("request rejected", attrs...)
		default:
			logger.Debug("request served", attrs...)
		}
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(&cspWriter{ResponseWriter: w}, r)
	})
}

// cspWriter adds the content security policy to HTML responses once the
// content type is known.
type cspWriter struct {
	http.ResponseWriter
	wrote bool
}

func (c *cspWriter) WriteHeader(status int) {
	if !c.wrote {
		c.wrote = true
		if strings.Contains(c.Header().Get("Content-Type"), "text/html") {
			c.Header().Set("Content-Security-Policy", contentSecurityPolicy)
		}
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *cspWriter) Write(p []byte) (int, error) {
	if !c.wrote {
		if c.Header().Get("Content-Type") == "" {
			c.Header().Set("Content-Type", http.DetectContentType(p))
		}
		c.WriteHeader(http.StatusOK)
	}
	return c.ResponseWriter.Write(p)
}

// authMiddleware validates bearer tokens. If token is empty, no
// authentication is required and all requests pass through.
func authMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withSession attaches the browser session, creating one when the cookie is
// missing, malformed or expired.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(s.cfg.Session.CookieName); err == nil && s.sessions.Valid(c.Value) {
			id = c.Value
			if err := s.sessions.Touch(id); err != nil {
				s.log(r).Warn("session touch failed", logging.Error(err))
			}
		} else {
			newID, err := session.NewID()
			if err == nil {
				err = s.sessions.Init(newID)
			}
			if err != nil {
				logging.ErrorWithContext(s.log(r), "session initialization failed", "session_init_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check data_dir permissions"),
				)
				writeError(w, s.logger, http.StatusInternalServerError, "Internal server error",
					"An unexpected error occurred. Please try again.")
				return
			}
			id = newID
			http.SetCookie(w, &http.Cookie{
				Name:     s.cfg.Session.CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(s.cfg.SessionLifetime().Seconds()),
				HttpOnly: true,
				Secure:   s.cfg.Session.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(logging.WithSessionID(r.Context(), id)))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	limit := s.cfg.Quotas.MaxRequestSize
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limit > 0 {
			if r.ContentLength > limit {
				writeTooLarge(w, s)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

func writeTooLarge(w http.ResponseWriter, s *Server) {
	writeError(w, s.logger, http.StatusRequestEntityTooLarge, "File too large",
		"The uploaded file exceeds the maximum allowed size.")
}

// rateLimit applies the named bucket, falling back to the general bucket.
func (s *Server) rateLimit(bucket string, next http.Handler) http.Handler {
	limiter, ok := s.limiters[bucket]
	if !ok {
		limiter = s.limiters[limitGeneral]
	}
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientIP(r)) {
			s.log(r).Info("rate limit exceeded",
				logging.String("bucket", bucket),
				logging.String(logging.FieldEventType, "rate_limited"),
			)
			writeError(w, s.logger, http.StatusTooManyRequests, "Rate limit exceeded",
				"Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func sessionID(r *http.Request) string {
	id, _ := logging.SessionIDFromContext(r.Context())
	return id
}
