package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
)

// TargetSampleRate is the sample rate whisper models are trained on.
const TargetSampleRate = 16000

const bitsPerSample = 16

// errNotPCMWAV is returned by decodeWAV for containers it cannot read
// directly. Such files are routed through ffmpeg.
var errNotPCMWAV = errors.New("not a 16-bit PCM WAV file")

// pcmAudio is 16-bit signed little-endian interleaved PCM.
type pcmAudio struct {
	data       []byte
	sampleRate int
	channels   int
}

// loadPCM reads path as 16 kHz PCM. 16-bit PCM WAV files are decoded
// in-process and, when recorded at another rate, down-mixed to mono and
// resampled. Any other container is converted with ffmpeg; an empty
// ffmpegPath disables that fallback.
func loadPCM(ctx context.Context, path, ffmpegPath string) (pcmAudio, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return pcmAudio{}, fmt.Errorf("whisper: read audio: %w", err)
	}
	a, err := decodeWAV(raw)
	if err == nil {
		if a.sampleRate == TargetSampleRate {
			return a, nil
		}
		if a.sampleRate <= 0 {
			return pcmAudio{}, fmt.Errorf("whisper: %s: invalid sample rate %d", path, a.sampleRate)
		}
		mono := downmix16(a.data, a.channels)
		return pcmAudio{
			data:       resampleMono16(mono, a.sampleRate, TargetSampleRate),
			sampleRate: TargetSampleRate,
			channels:   1,
		}, nil
	}
	if ffmpegPath == "" {
		return pcmAudio{}, fmt.Errorf("whisper: %s: %w (ffmpeg conversion disabled)", path, err)
	}
	return ffmpegPCM(ctx, ffmpegPath, path)
}

// ffmpegPCM decodes any container ffmpeg understands into 16 kHz mono
// s16le PCM read from its stdout.
func ffmpegPCM(ctx context.Context, ffmpegPath, path string) (pcmAudio, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-ar", fmt.Sprint(TargetSampleRate), "-ac", "1",
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return pcmAudio{}, fmt.Errorf("whisper: ffmpeg: %w", ctx.Err())
		}
		return pcmAudio{}, fmt.Errorf("whisper: ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return pcmAudio{data: stdout.Bytes(), sampleRate: TargetSampleRate, channels: 1}, nil
}

// decodeWAV parses a RIFF/WAVE container holding uncompressed 16-bit PCM.
// Unknown chunks between fmt and data are skipped.
func decodeWAV(b []byte) (pcmAudio, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return pcmAudio{}, errNotPCMWAV
	}

	var (
		a      pcmAudio
		gotFmt bool
	)
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(b) {
			// Streaming encoders write a bogus data size; take the rest.
			if id == "data" && gotFmt {
				size = len(b) - body
			} else {
				return pcmAudio{}, fmt.Errorf("%w: truncated %q chunk", errNotPCMWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return pcmAudio{}, fmt.Errorf("%w: short fmt chunk", errNotPCMWAV)
			}
			format := binary.LittleEndian.Uint16(b[body : body+2])
			a.channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			a.sampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(b[body+14 : body+16])
			if format != 1 || bits != bitsPerSample || a.channels < 1 {
				return pcmAudio{}, fmt.Errorf("%w: format %d, %d bits", errNotPCMWAV, format, bits)
			}
			gotFmt = true
		case "data":
			if !gotFmt {
				return pcmAudio{}, fmt.Errorf("%w: data before fmt", errNotPCMWAV)
			}
			a.data = b[body : body+size]
			return a, nil
		}

		// Chunks are word aligned.
		off = body + size + size%2
	}
	return pcmAudio{}, fmt.Errorf("%w: no data chunk", errNotPCMWAV)
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// monoFloat32 down-mixes interleaved 16-bit PCM to mono float32 samples in
// [-1.0, 1.0] by averaging the channels of each frame. A trailing partial
// frame is dropped.
func monoFloat32(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:idx+2]))) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// downmix16 averages the channels of interleaved 16-bit PCM into mono,
// clamping to the int16 range. Mono input is returned unchanged.
func downmix16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[idx : idx+2])))
		}
		avg := max(min(sum/int32(channels), math.MaxInt16), math.MinInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(avg)))
	}
	return out
}

// resampleMono16 converts 16-bit mono PCM from srcRate to dstRate by linear
// interpolation.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s0*(1-frac)+s1*frac)))
	}
	return out
}
