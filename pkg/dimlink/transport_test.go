// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

// ============================================================
// Mock Link
// ============================================================

// mockLink answers each write with the next queued reply
type mockLink struct {
	written  [][]byte
	replies  [][]byte
	pending  []byte
	failAt   int // 1-based write that fails, 0 = never
	readErr  error
	maxChunk int
}

func (m *mockLink) Write(p []byte) (int, error) {
	if m.failAt > 0 && len(m.written)+1 == m.failAt {
		return 0, errors.New("link down")
	}
	m.written = append(m.written, append([]byte(nil), p...))
	if len(m.replies) > 0 {
		m.pending = append(m.pending, m.replies[0]...)
		m.replies = m.replies[1:]
	}
	return len(p), nil
}

func (m *mockLink) Read(p []byte) (int, error) {
	if len(m.pending) == 0 {
		return 0, m.readErr
	}
	limit := len(p)
	if m.maxChunk > 0 && m.maxChunk < limit {
		limit = m.maxChunk
	}
	n := copy(p[:limit], m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func newTestTransport(link *mockLink) *Transport {
	return NewTransport(link, WithSettleDelay(0))
}

// ============================================================
// Transport Tests
// ============================================================

func TestTransport_TransactIncrementsCounter(t *testing.T) {
	link := &mockLink{}
	tr := newTestTransport(link)

	for i := 0; i < 3; i++ {
		if _, err := tr.Transact(context.Background(), CmdGetVersion, nil); err != nil {
			t.Fatalf("Transact() error: %v", err)
		}
	}
	if len(link.written) != 3 {
		t.Fatalf("wrote %d frames, want 3", len(link.written))
	}
	for i, w := range link.written {
		if w[1] != uint8(i) {
			t.Errorf("frame %d counter = %d, want %d", i, w[1], i)
		}
	}
	if tr.Counter() != 3 {
		t.Errorf("Counter() = %d, want 3", tr.Counter())
	}
}

func TestTransport_CounterWraps(t *testing.T) {
	link := &mockLink{}
	tr := newTestTransport(link)
	for i := 0; i < 256; i++ {
		if _, err := tr.Transact(context.Background(), CmdGetState, nil); err != nil {
			t.Fatalf("Transact() error: %v", err)
		}
	}
	if tr.Counter() != 0 {
		t.Errorf("Counter() = %d after 256 frames, want 0", tr.Counter())
	}
}

func TestTransport_DrainsReply(t *testing.T) {
	link := &mockLink{
		replies:  [][]byte{mustEncode(t, 0, CmdGetState, []byte{1, 2, 3, 4, 5, 6, 7, 8})},
		maxChunk: 3,
	}
	tr := newTestTransport(link)

	frames, err := tr.Transact(context.Background(), CmdGetState, nil)
	if err != nil {
		t.Fatalf("Transact() error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Command() != CmdGetState {
		t.Errorf("Command() = %s, want GET_STATE", frames[0].Command())
	}
	stats := tr.Statistics().Snapshot()
	if stats.ValidFrames != 1 || stats.CounterWarnings != 0 {
		t.Errorf("stats valid=%d warnings=%d, want 1/0", stats.ValidFrames, stats.CounterWarnings)
	}
}

func TestTransport_CounterMismatchIsWarning(t *testing.T) {
	link := &mockLink{
		replies: [][]byte{mustEncode(t, 0x33, CmdSetBrightness, nil)},
	}
	tr := newTestTransport(link)

	frames, err := tr.Transact(context.Background(), CmdSetBrightness, []byte{0x64, 0x00})
	if err != nil {
		t.Fatalf("Transact() error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("mismatched frame dropped: got %d frames", len(frames))
	}
	if w := tr.Statistics().Snapshot().CounterWarnings; w != 1 {
		t.Errorf("CounterWarnings = %d, want 1", w)
	}
}

func TestTransport_ProtocolErrorsAreNotReturned(t *testing.T) {
	bad := mustEncode(t, 0, CmdGetState, []byte{9})
	bad[4] = 8
	link := &mockLink{replies: [][]byte{bad}}
	tr := newTestTransport(link)

	frames, err := tr.Transact(context.Background(), CmdGetState, nil)
	if err != nil {
		t.Fatalf("Transact() error: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("got %d frames, want 0", len(frames))
	}
	if n := tr.Statistics().Snapshot().ChecksumErrors; n != 1 {
		t.Errorf("ChecksumErrors = %d, want 1", n)
	}
}

func TestTransport_WriteErrorKeepsCounter(t *testing.T) {
	link := &mockLink{failAt: 1}
	tr := newTestTransport(link)

	if _, err := tr.Transact(context.Background(), CmdGetVersion, nil); err == nil {
		t.Fatal("Transact() should fail when the write fails")
	}
	if tr.Counter() != 0 {
		t.Errorf("Counter() = %d, want 0", tr.Counter())
	}
}

func TestTransport_CanceledContext(t *testing.T) {
	link := &mockLink{}
	tr := newTestTransport(link)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Transact(ctx, CmdGetVersion, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Transact() error = %v, want context.Canceled", err)
	}
	if len(link.written) != 0 {
		t.Error("nothing should be written after cancellation")
	}
}

func TestTransport_EOFEndsDrain(t *testing.T) {
	link := &mockLink{
		replies: [][]byte{mustEncode(t, 0, CmdGetVersion, []byte{0x35, 0x02})},
		readErr: io.EOF,
	}
	tr := newTestTransport(link)

	frames, err := tr.Transact(context.Background(), CmdGetVersion, nil)
	if err != nil {
		t.Fatalf("Transact() error: %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("got %d frames, want 1", len(frames))
	}
}

func TestTransport_ReadErrorReturned(t *testing.T) {
	link := &mockLink{readErr: errors.New("port gone")}
	tr := newTestTransport(link)

	if _, err := tr.Transact(context.Background(), CmdGetVersion, nil); err == nil {
		t.Error("Transact() should surface read errors")
	}
}

func TestTransport_Poll(t *testing.T) {
	link := &mockLink{}
	link.pending = mustEncode(t, 9, CmdGetState, []byte{0, 0, 0x64, 0, 0, 0, 0, 0})
	tr := newTestTransport(link)

	frames, err := tr.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if len(frames) != 1 || frames[0].Counter() != 9 {
		t.Errorf("Poll() frames = %v, want one frame with counter 9", frames)
	}
	if len(link.written) != 0 {
		t.Error("Poll() must not write")
	}
}

func TestTransport_BufferSize(t *testing.T) {
	link := &mockLink{}
	tr := NewTransport(link, WithSettleDelay(0), WithBufferSize(32))
	if _, err := tr.Transact(context.Background(), CmdDimmingType2, DimmingTypeBlock()); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("Transact() error = %v, want ErrPayloadTooLarge", err)
	}
}

// ============================================================
// Client Tests
// ============================================================

type recordingObserver struct {
	brightness []uint16
	wattage    []uint16
}

func (r *recordingObserver) ObserveState(b uint16, w uint16) {
	r.brightness = append(r.brightness, b)
	r.wattage = append(r.wattage, w)
}

func TestClient_SetBrightnessThenState(t *testing.T) {
	profile := Profile{Scale: 1, BrightnessOffset: 2, WattageOffset: 6, WattageDivisor: 20}
	state := []byte{0x00, 0x00, 0x0A, 0x01, 0x00, 0x00, 0x78, 0x09, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00}
	link := &mockLink{
		replies: [][]byte{
			mustEncode(t, 0, CmdSetBrightness, nil),
			mustEncode(t, 1, CmdGetState, state),
		},
	}
	obs := &recordingObserver{}
	c := NewClient(newTestTransport(link), profile, nil)
	c.SetObserver(obs)

	if err := c.SetBrightness(context.Background(), 500); err != nil {
		t.Fatalf("SetBrightness() error: %v", err)
	}
	if got := link.written[0][HeaderSize : HeaderSize+2]; !bytes.Equal(got, []byte{0xF4, 0x01}) {
		t.Errorf("brightness payload = % X, want F4 01", got)
	}
	if link.written[0][3] != 2 {
		t.Errorf("payload length = %d, want 2", link.written[0][3])
	}

	reply, err := c.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error: %v", err)
	}
	if reply.Brightness != 266 {
		t.Errorf("Brightness = %d, want 266", reply.Brightness)
	}
	if reply.Wattage != 121 {
		t.Errorf("Wattage = %d, want 121", reply.Wattage)
	}
	if len(obs.brightness) != 1 || obs.brightness[0] != 266 {
		t.Errorf("observer saw %v, want [266]", obs.brightness)
	}
}

func TestClient_PercentProfileScalesBrightness(t *testing.T) {
	link := &mockLink{}
	c := NewClient(newTestTransport(link), ProfilePercent, nil)

	if err := c.SetBrightness(context.Background(), 50); err != nil {
		t.Fatalf("SetBrightness() error: %v", err)
	}
	w := link.written[0]
	if Command(w[2]) != CmdSetBrightness {
		t.Errorf("command = %s, want SET_BRIGHTNESS", Command(w[2]))
	}
	if !bytes.Equal(w[HeaderSize:HeaderSize+2], []byte{0xF4, 0x01}) {
		t.Errorf("payload = % X, want F4 01", w[HeaderSize:HeaderSize+2])
	}
}

func TestClient_AdvancedProfile(t *testing.T) {
	link := &mockLink{}
	c := NewClient(newTestTransport(link), ProfilePerMille, nil)

	if err := c.SetBrightness(context.Background(), 750); err != nil {
		t.Fatalf("SetBrightness() error: %v", err)
	}
	w := link.written[0]
	if Command(w[2]) != CmdSetBrightnessAdvanced {
		t.Errorf("command = %s, want SET_BRIGHTNESS_ADVANCED", Command(w[2]))
	}
	want := []byte{0xEE, 0x02, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(w[HeaderSize:HeaderSize+6], want) {
		t.Errorf("payload = % X, want % X", w[HeaderSize:HeaderSize+6], want)
	}
}

func TestClient_GetVersion(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		match   bool
	}{
		{"expected firmware", []byte{0x35, 0x02}, true},
		{"other firmware", []byte{0x34, 0x01}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := &mockLink{replies: [][]byte{mustEncode(t, 0, CmdGetVersion, tt.payload)}}
			c := NewClient(newTestTransport(link), ProfilePercent, nil)
			v, err := c.GetVersion(context.Background())
			if err != nil {
				t.Fatalf("GetVersion() error: %v", err)
			}
			if v.Match != tt.match {
				t.Errorf("Match = %v, want %v", v.Match, tt.match)
			}
		})
	}
}

func TestClient_NoReply(t *testing.T) {
	c := NewClient(newTestTransport(&mockLink{}), ProfilePercent, nil)
	if _, err := c.GetState(context.Background()); !errors.Is(err, ErrNoReply) {
		t.Errorf("GetState() error = %v, want ErrNoReply", err)
	}
	if err := c.SetBrightness(context.Background(), 10); err != nil {
		t.Errorf("SetBrightness() without ack should not fail: %v", err)
	}
}

func TestClient_UnknownReplyCounted(t *testing.T) {
	link := &mockLink{replies: [][]byte{mustEncode(t, 0, Command(0x77), []byte{1})}}
	tr := newTestTransport(link)
	c := NewClient(tr, ProfilePercent, nil)

	if err := c.SetBrightness(context.Background(), 10); err != nil {
		t.Fatalf("SetBrightness() error: %v", err)
	}
	if n := tr.Statistics().Snapshot().UnknownCommands; n != 1 {
		t.Errorf("UnknownCommands = %d, want 1", n)
	}
}

func TestClient_SetDimmingParameters(t *testing.T) {
	link := &mockLink{}
	c := NewClient(newTestTransport(link), ProfilePercent, nil)
	params := DimmingParameters{Edge: EdgeLeading, Debounce: 120, FadeRate: DefaultFadeRate}

	if err := c.SetDimmingParameters(context.Background(), params); err != nil {
		t.Fatalf("SetDimmingParameters() error: %v", err)
	}
	if len(link.written) != 3 {
		t.Fatalf("wrote %d frames, want 3", len(link.written))
	}

	wantCmds := []Command{CmdSetDimmingParameters, CmdDimmingType2, CmdDimmingType3}
	wantLens := []int{12, DimmingTypeBlockSize, DimmingTypeBlockSize}
	for i, w := range link.written {
		if Command(w[2]) != wantCmds[i] {
			t.Errorf("frame %d command = %s, want %s", i, Command(w[2]), wantCmds[i])
		}
		if int(w[3]) != wantLens[i] {
			t.Errorf("frame %d length = %d, want %d", i, w[3], wantLens[i])
		}
	}

	template := []byte{0x00, 0x00, 0x01, 0x00, 0x0F, 0x00, 0x78, 0x00, 0x00, 0x00, 0x00, 0x00}
	if got := link.written[0][HeaderSize : HeaderSize+12]; !bytes.Equal(got, template) {
		t.Errorf("template = % X, want % X", got, template)
	}
}

func TestClient_SetDimmingParametersIncomplete(t *testing.T) {
	link := &mockLink{failAt: 2}
	c := NewClient(newTestTransport(link), ProfilePercent, nil)

	err := c.SetDimmingParameters(context.Background(), DefaultDimmingParameters())
	var tie *TransactionIncompleteError
	if !errors.As(err, &tie) {
		t.Fatalf("error = %v, want *TransactionIncompleteError", err)
	}
	if tie.Step != 1 || tie.Command != CmdDimmingType2 {
		t.Errorf("failed at step %d (%s), want step 1 (DIMMING_TYPE_2)", tie.Step, tie.Command)
	}
	if len(link.written) != 1 {
		t.Errorf("wrote %d frames, want 1 (no retry)", len(link.written))
	}
}

type fakeResetLines struct {
	calls []string
}

func (f *fakeResetLines) SetReset(level int) error {
	f.calls = append(f.calls, map[int]string{0: "nrst-low", 1: "nrst-high"}[level])
	return nil
}

func (f *fakeResetLines) SetBoot0(level int) error {
	f.calls = append(f.calls, map[int]string{0: "boot0-low", 1: "boot0-high"}[level])
	return nil
}

func TestClient_Reset(t *testing.T) {
	link := &mockLink{replies: [][]byte{mustEncode(t, 0, CmdGetVersion, []byte{0x35, 0x02})}}
	c := NewClient(newTestTransport(link), ProfilePercent, nil)
	lines := &fakeResetLines{}

	v, err := c.Reset(context.Background(), lines)
	if err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if !v.Match {
		t.Error("version should match")
	}
	want := []string{"boot0-low", "nrst-low", "nrst-high"}
	if len(lines.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", lines.calls, want)
	}
	for i := range want {
		if lines.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, lines.calls[i], want[i])
		}
	}
}

func TestClampFlickerDebounce(t *testing.T) {
	tests := []struct {
		in   uint64
		want uint8
	}{
		{0, 50}, {49, 50}, {50, 50}, {100, 100}, {150, 150}, {151, 150}, {999, 150},
	}
	for _, tt := range tests {
		if got := ClampFlickerDebounce(tt.in); got != tt.want {
			t.Errorf("ClampFlickerDebounce(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseReply_ShortState(t *testing.T) {
	_, err := ParseReply(ProfilePercent, NewFrame(0, CmdGetState, []byte{1, 2, 3}))
	if !errors.Is(err, ErrShortPayload) {
		t.Errorf("ParseReply() error = %v, want ErrShortPayload", err)
	}
}
