package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/stillmind/stillmind/internal/source"
)

// All streamers are resampled to a fixed speaker rate so ambience,
// bells and previews can mix regardless of their native sample rates.
const speakerRate = beep.SampleRate(44100)

const speakerBufLen = time.Second / 10

// BeepEngine is the real audio engine, backed by gopxl/beep's speaker.
type BeepEngine struct {
	mu      sync.Mutex
	bundled fs.FS
	client  *http.Client
	inited  bool
	closed  bool
}

var _ Engine = (*BeepEngine)(nil)

// NewBeepEngine creates the real engine. bundled holds the sounds
// shipped with the application and may be nil when none are used.
func NewBeepEngine(bundled fs.FS) *BeepEngine {
	return &BeepEngine{
		bundled: bundled,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (e *BeepEngine) ensureSpeaker() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited {
		return nil
	}
	if err := speaker.Init(speakerRate, speakerRate.N(speakerBufLen)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	e.inited = true
	return nil
}

// Load implements Engine.
func (e *BeepEngine) Load(ctx context.Context, src source.Source) (Handle, error) {
	if err := e.ensureSpeaker(); err != nil {
		return nil, err
	}

	rc, ext, tmpPath, err := e.open(ctx, src)
	if err != nil {
		return nil, err
	}

	streamer, format, err := decode(rc, ext)
	if err != nil {
		rc.Close()
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
		return nil, fmt.Errorf("decode %s: %w", src.URI(), err)
	}

	return newBeepHandle(streamer, format, rc, tmpPath), nil
}

// LoadSilence implements Engine.
func (e *BeepEngine) LoadSilence(_ context.Context, d time.Duration) (Handle, error) {
	if err := e.ensureSpeaker(); err != nil {
		return nil, err
	}
	format := beep.Format{SampleRate: speakerRate, NumChannels: 2, Precision: 2}
	streamer := newSilence(speakerRate.N(d))
	return newBeepHandle(streamer, format, nil, ""), nil
}

// Close implements Engine.
func (e *BeepEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.inited {
		speaker.Clear()
		speaker.Close()
	}
	return nil
}

// open returns a read-seekable stream for the source plus its file
// extension and, for remote sources, the temp file backing it.
func (e *BeepEngine) open(ctx context.Context, src source.Source) (io.ReadSeekCloser, string, string, error) {
	switch s := src.(type) {
	case source.LocalFile:
		f, err := os.Open(s.Path)
		if err != nil {
			return nil, "", "", err
		}
		return f, strings.ToLower(filepath.Ext(s.Path)), "", nil

	case source.Bundled:
		if e.bundled == nil {
			return nil, "", "", fmt.Errorf("%w: no bundled assets", source.ErrNotFound)
		}
		data, err := fs.ReadFile(e.bundled, s.Key)
		if err != nil {
			return nil, "", "", fmt.Errorf("bundled %s: %w", s.Key, err)
		}
		return nopSeekCloser{bytes.NewReader(data)}, strings.ToLower(path.Ext(s.Key)), "", nil

	case source.RemoteStream:
		// Streamed decode would lose seekability, which the loop and
		// repair paths depend on, so remote sources are staged to a
		// temp file first.
		f, err := e.fetch(ctx, s.URL)
		if err != nil {
			return nil, "", "", err
		}
		return f, strings.ToLower(path.Ext(s.URL)), f.Name(), nil

	default:
		return nil, "", "", fmt.Errorf("unknown source type %T", src)
	}
}

func (e *BeepEngine) fetch(ctx context.Context, url string) (*os.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	f, err := os.CreateTemp("", "stillmind-stream-*"+path.Ext(url))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}

func decode(r io.ReadSeekCloser, ext string) (beep.StreamSeekCloser, beep.Format, error) {
	switch ext {
	case ".mp3":
		return mp3.Decode(r)
	case ".flac":
		// Skip an ID3v2 tag if present; some taggers prepend one and
		// the FLAC decoder does not handle it.
		if err := skipID3v2(r); err != nil {
			return nil, beep.Format{}, err
		}
		return flac.Decode(r)
	case ".wav":
		return wav.Decode(r)
	case ".ogg", ".oga":
		return vorbis.Decode(r)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// skipID3v2 skips an ID3v2 tag if present at the beginning of the
// stream, leaving the reader positioned at the audio data.
func skipID3v2(r io.ReadSeeker) error {
	header := make([]byte, 10)
	n, err := io.ReadFull(r, header)
	if err != nil || n < 10 || string(header[0:3]) != "ID3" {
		_, serr := r.Seek(0, io.SeekStart)
		return serr
	}

	// ID3v2 size is a syncsafe integer in bytes 6-9 (7 bits per byte).
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])
	_, err = r.Seek(10+size, io.SeekStart)
	return err
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }
