package server

import (
	"net/http"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"

	"anigiffy/internal/logging"
	"anigiffy/internal/textutil"
)

const qrSize = 256

// handleQRCode renders the download URL of a generated GIF as a PNG QR
// code so it can be opened on another device.
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	filename := textutil.SecureFilename(r.PathValue("filename"))
	if _, err := s.sessions.ExistingOutput(sessionID(r), filename); err != nil {
		writeError(w, s.logger, http.StatusNotFound, "File not found", "GIF file does not exist: "+filename)
		return
	}
	png, err := qrcode.Encode(downloadURL(r, filename), qrcode.Medium, qrSize)
	if err != nil {
		s.log(r).Warn("qr encode failed", logging.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "Failed to create QR code", err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func downloadURL(r *http.Request, filename string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: "/api/generate/download/" + filename}
	return u.String()
}
