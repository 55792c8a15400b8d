package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func samplesPCM(values ...int16) []byte {
	buf := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestEncodeDecodeWAV(t *testing.T) {
	pcm := samplesPCM(0, 100, -100, 32767)
	a, err := decodeWAV(encodeWAV(pcm, 16000, 2))
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if a.sampleRate != 16000 || a.channels != 2 {
		t.Errorf("got %d Hz, %d channels", a.sampleRate, a.channels)
	}
	if string(a.data) != string(pcm) {
		t.Errorf("data mismatch: %v vs %v", a.data, pcm)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	wav := encodeWAV(samplesPCM(1, 2, 3), 16000, 1)
	// Splice a 3-byte LIST chunk (padded to 4) between fmt and data.
	extra := append([]byte("LIST\x03\x00\x00\x00abc"), 0)
	spliced := append(append(append([]byte{}, wav[:36]...), extra...), wav[36:]...)

	a, err := decodeWAV(spliced)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if len(a.data) != 6 {
		t.Errorf("data length = %d, want 6", len(a.data))
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	float := encodeWAV(samplesPCM(1), 16000, 1)
	binary.LittleEndian.PutUint16(float[20:22], 3) // IEEE float

	for name, b := range map[string][]byte{
		"empty":   nil,
		"mp3":     []byte("ID3\x03\x00\x00\x00\x00\x00\x00\x00\x00"),
		"float":   float,
		"no data": encodeWAV(nil, 16000, 1)[:36],
	} {
		if _, err := decodeWAV(b); !errors.Is(err, errNotPCMWAV) {
			t.Errorf("%s: err = %v, want errNotPCMWAV", name, err)
		}
	}
}

func TestMonoFloat32(t *testing.T) {
	tests := []struct {
		name     string
		pcm      []byte
		channels int
		want     []float32
	}{
		{"empty", nil, 1, []float32{}},
		{"mono", samplesPCM(16384, -32768), 1, []float32{0.5, -1}},
		{"stereo averaged", samplesPCM(16384, 0, -16384, -16384), 2, []float32{0.25, -0.5}},
		{"partial frame dropped", samplesPCM(16384, 0, 100), 2, []float32{0.25}},
		{"zero channels treated as mono", samplesPCM(0), 0, []float32{0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := monoFloat32(tc.pcm, tc.channels)
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tc.want[i])) > 1e-6 {
					t.Errorf("sample %d = %f, want %f", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestLoadPCM_WAVWithoutFFmpeg(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.wav")
	if err := os.WriteFile(ok, encodeWAV(samplesPCM(1, 2), TargetSampleRate, 1), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := loadPCM(context.Background(), ok, "")
	if err != nil {
		t.Fatalf("loadPCM: %v", err)
	}
	if len(a.data) != 4 {
		t.Errorf("data length = %d", len(a.data))
	}

	garbage := filepath.Join(dir, "clip.m4a")
	if err := os.WriteFile(garbage, []byte("ftypM4A "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadPCM(context.Background(), garbage, ""); err == nil {
		t.Error("expected error for non-WAV input with ffmpeg disabled")
	}
}

func TestLoadPCM_ResamplesWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "48k-stereo.wav")
	// 480 stereo frames at 48 kHz: 10 ms.
	pcm := make([]byte, 480*4)
	if err := os.WriteFile(path, encodeWAV(pcm, 48000, 2), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := loadPCM(context.Background(), path, "")
	if err != nil {
		t.Fatalf("loadPCM: %v", err)
	}
	if a.sampleRate != TargetSampleRate || a.channels != 1 {
		t.Errorf("format = %d Hz / %d ch, want 16000 Hz mono", a.sampleRate, a.channels)
	}
	if len(a.data) != 160*2 {
		t.Errorf("data length = %d, want %d", len(a.data), 160*2)
	}
}

func TestDownmix16(t *testing.T) {
	// L=1000, R=3000 and L=-32768, R=-32768.
	pcm := []byte{0xe8, 0x03, 0xb8, 0x0b, 0x00, 0x80, 0x00, 0x80}
	got := downmix16(pcm, 2)
	want := []byte{0xd0, 0x07, 0x00, 0x80}
	if !bytes.Equal(got, want) {
		t.Errorf("downmix16 = %x, want %x", got, want)
	}
	if mono := []byte{1, 2}; !bytes.Equal(downmix16(mono, 1), mono) {
		t.Error("mono input changed")
	}
}

func TestResampleMono16(t *testing.T) {
	// 0, 100, 200, 300 at 4 Hz → 2 Hz keeps every other sample.
	pcm := []byte{0, 0, 100, 0, 200, 0, 44, 1}
	got := resampleMono16(pcm, 4, 2)
	want := []byte{0, 0, 200, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("resampleMono16 = %v, want %v", got, want)
	}

	// Upsampling interpolates between neighbours.
	up := resampleMono16([]byte{0, 0, 100, 0}, 1, 2)
	if v := int16(binary.LittleEndian.Uint16(up[2:])); v != 50 {
		t.Errorf("interpolated sample = %d, want 50", v)
	}
	if len(up) != 8 {
		t.Errorf("upsampled length = %d, want 8", len(up))
	}
}
