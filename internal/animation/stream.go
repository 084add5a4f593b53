package animation

import (
	"image"
	"io"
	"time"

	gifx "github.com/NathanBaulch/gifx"

	"anigiffy/internal/project"
)

// gifStream writes frames to w as they are produced. Nothing but the current
// frame is held; the header goes out before the first frame is prepared.
type gifStream struct {
	enc    *gifx.Encoder
	frames int
}

func openGIFStream(w io.Writer, s project.Settings) (*gifStream, error) {
	enc := gifx.NewEncoder(w)
	if err := enc.WriteHeader(image.Config{Width: s.Width, Height: s.Height}, 0); err != nil {
		return nil, err
	}
	// A negative loop count omits the NETSCAPE block and plays once.
	if s.Loop >= 0 {
		if err := enc.WriteApplicationNetscape(&gifx.ApplicationNetscape{LoopCount: s.Loop}); err != nil {
			return nil, err
		}
	}
	return &gifStream{enc: enc}, nil
}

// frame writes one paletted frame shown for delay centiseconds. Every frame
// clears to the background before the next draws, since palettes differ.
func (g *gifStream) frame(pm *image.Paletted, delay int) error {
	g.frames++
	return g.enc.WriteFrame(&gifx.Frame{
		Image:          pm,
		DelayTime:      time.Duration(delay) * 10 * time.Millisecond,
		DisposalMethod: gifx.DisposalBackground,
	})
}

func (g *gifStream) close() error {
	if err := g.enc.WriteTrailer(); err != nil {
		return err
	}
	return g.enc.Flush()
}
