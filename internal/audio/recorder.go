package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"careva/internal/ports"
)

// ErrEmptyRecording is returned by Stop when no audio samples were
// captured. The spool file is removed before returning.
var ErrEmptyRecording = errors.New("recording captured no audio")

const wavMimeType = "audio/wav"

// SpoolRecorder records microphone audio into a WAV spool file. The
// spool is the releasable resource backing a Recording: Release removes
// the file and is safe to call more than once.
type SpoolRecorder struct {
	capture ports.AudioCapture
	fs      afero.Fs
	dir     string
}

func NewSpoolRecorder(capture ports.AudioCapture, fs afero.Fs, dir string) *SpoolRecorder {
	return &SpoolRecorder{capture: capture, fs: fs, dir: dir}
}

func (r *SpoolRecorder) Start(ctx context.Context, cfg ports.AudioConfig) (ports.RecordingSession, error) {
	cfg = withAudioDefaults(cfg)

	audioSession, err := r.capture.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}

	file, err := afero.TempFile(r.fs, r.dir, "careva-note-*.wav")
	if err != nil {
		_ = audioSession.Stop()
		return nil, fmt.Errorf("failed to create recording spool: %w", err)
	}

	session := &spoolSession{
		audio:      audioSession,
		fs:         r.fs,
		file:       file,
		path:       file.Name(),
		encoder:    wav.NewEncoder(file, cfg.SampleRate, 16, cfg.Channels, 1),
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		done:       make(chan struct{}),
	}
	go session.copyLoop()
	return session, nil
}

type spoolSession struct {
	audio   ports.AudioSession
	fs      afero.Fs
	file    afero.File
	path    string
	encoder *wav.Encoder

	sampleRate int
	channels   int

	samples int64
	copyErr error
	done    chan struct{}

	stopOnce  sync.Once
	stopped   recordingResult
	abortOnce sync.Once
}

type recordingResult struct {
	recording ports.Recording
	err       error
}

func (s *spoolSession) copyLoop() {
	defer close(s.done)

	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			usable := len(data) &^ 1
			carry = append([]byte(nil), data[usable:]...)

			if usable > 0 {
				ints := make([]int, usable/2)
				for i := range ints {
					ints[i] = int(int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2])))
				}
				if encErr := s.encoder.Write(&goaudio.IntBuffer{
					Format: &goaudio.Format{NumChannels: s.channels, SampleRate: s.sampleRate},
					Data:   ints,
				}); encErr != nil {
					s.copyErr = fmt.Errorf("failed to spool audio: %w", encErr)
					return
				}
				s.samples += int64(len(ints))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.copyErr = fmt.Errorf("audio capture error: %w", err)
			}
			return
		}
	}
}

// Stop finalizes the WAV spool and hands ownership of the recording to
// the caller. A capture that produced no samples yields
// ErrEmptyRecording and no recording.
func (s *spoolSession) Stop() (ports.Recording, error) {
	s.stopOnce.Do(func() {
		_ = s.audio.Stop()
		<-s.done

		if err := s.encoder.Close(); err != nil && s.copyErr == nil {
			s.copyErr = fmt.Errorf("failed to finalize recording: %w", err)
		}
		if err := s.file.Close(); err != nil && s.copyErr == nil {
			s.copyErr = err
		}

		if s.copyErr != nil {
			_ = s.fs.Remove(s.path)
			s.stopped = recordingResult{err: s.copyErr}
			return
		}
		if s.samples == 0 {
			_ = s.fs.Remove(s.path)
			s.stopped = recordingResult{err: ErrEmptyRecording}
			return
		}

		duration, err := spoolDuration(s.fs, s.path)
		if err != nil {
			_ = s.fs.Remove(s.path)
			s.stopped = recordingResult{err: err}
			return
		}

		s.stopped = recordingResult{recording: &spoolRecording{
			fs:       s.fs,
			path:     s.path,
			size:     s.samples * 2,
			duration: duration,
		}}
	})
	return s.stopped.recording, s.stopped.err
}

// Abort discards the in-progress recording and removes the spool.
func (s *spoolSession) Abort() error {
	var err error
	s.abortOnce.Do(func() {
		recording, stopErr := s.Stop()
		if recording != nil {
			err = recording.Release()
			return
		}
		if stopErr != nil && !errors.Is(stopErr, ErrEmptyRecording) {
			err = stopErr
		}
	})
	return err
}

func spoolDuration(fs afero.Fs, path string) (float64, error) {
	file, err := fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to reopen recording: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	duration, err := decoder.Duration()
	if err != nil {
		return 0, fmt.Errorf("recording is not a valid WAV file: %w", err)
	}
	return duration.Seconds(), nil
}

// spoolRecording is a finished recording backed by a WAV spool file.
type spoolRecording struct {
	fs       afero.Fs
	path     string
	size     int64
	duration float64

	released    atomic.Bool
	releaseOnce sync.Once
	releaseErr  error
}

func (r *spoolRecording) Open() (io.ReadCloser, error) {
	if r.released.Load() {
		return nil, errors.New("recording has been released")
	}
	file, err := r.fs.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	return file, nil
}

func (r *spoolRecording) MimeType() string { return wavMimeType }

func (r *spoolRecording) Size() int64 { return r.size }

func (r *spoolRecording) DurationSeconds() float64 { return r.duration }

// Release removes the spool file. Safe to call twice; the second call
// is a no-op.
func (r *spoolRecording) Release() error {
	r.releaseOnce.Do(func() {
		r.released.Store(true)
		r.releaseErr = r.fs.Remove(r.path)
	})
	return r.releaseErr
}
