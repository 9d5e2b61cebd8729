package link

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type syncTestStep struct {
	in       []byte
	expect   ParseResult
	final    ParseResult
	frame    *Frame
	consume  bool
	search   bool
	progress EscapeProgress
}

type syncTestSequenceBuilder struct {
	steps []syncTestStep
}

func syncTestSequences() *syncTestSequenceBuilder {
	return &syncTestSequenceBuilder{}
}

func (b *syncTestSequenceBuilder) on(state State, in ...byte) *syncTestSequenceBuilder {
	s := syncTestStep{in: in, expect: ParseResult{State: state}}
	s.final = s.expect
	b.steps = append(b.steps, s)
	return b
}

func (b *syncTestSequenceBuilder) onSynced(in ...byte) *syncTestSequenceBuilder {
	return b.on(Synchronized, in...)
}

func (b *syncTestSequenceBuilder) onSearching(in ...byte) *syncTestSequenceBuilder {
	return b.on(Searching, in...)
}

func (b *syncTestSequenceBuilder) forceSearch() *syncTestSequenceBuilder {
	b.steps = append(b.steps, syncTestStep{search: true})
	return b
}

func (b *syncTestSequenceBuilder) last() *syncTestStep {
	return &b.steps[len(b.steps)-1]
}

func (b *syncTestSequenceBuilder) frameReady(f Frame) *syncTestSequenceBuilder {
	s := b.last()
	s.final.Frame, s.frame, s.consume = &f, &f, true
	return b
}

func (b *syncTestSequenceBuilder) resynced() *syncTestSequenceBuilder {
	s := b.last()
	s.final = ParseResult{State: Synchronized, Resynced: true}
	return b
}

func (b *syncTestSequenceBuilder) withProgress(p EscapeProgress) *syncTestSequenceBuilder {
	b.last().progress = p
	return b
}

func (b *syncTestSequenceBuilder) build() []syncTestStep {
	return b.steps
}

func testFrame(positions ...byte) Frame {
	var cmd Command
	copy(cmd.Positions[:], positions)
	return cmd.Frame()
}

func TestSynchronizer(t *testing.T) {
	f1 := testFrame(10, 20, 30, 40, 50, 60)
	f2 := testFrame(1, 2, 3, 4, 5, 6)

	testCases := []struct {
		name string
		mode EscapeMode
		seq  []syncTestStep
	}{
		{
			name: "collect frames",
			seq: syncTestSequences().
				onSynced(f1[:]...).frameReady(f1).
				onSynced(f2[:]...).frameReady(f2).
				build(),
		},
		{
			name: "escape with noise",
			seq: syncTestSequences().
				forceSearch().
				onSearching(0x01, 'E', 0x02, 'N', 0x03, 'D', 0x04).withProgress(ProgressSawEND).
				onSearching(0xff).resynced().
				onSynced(f1[:]...).frameReady(f1).
				build(),
		},
		{
			name: "latched progress is not cleared",
			seq: syncTestSequences().
				forceSearch().
				onSearching('E', 'E', 'x', 'N', 'C', 'C').withProgress(ProgressSawEN).
				onSearching(0xff, 'D', 0xfe).withProgress(ProgressSawEND).
				onSearching(0xff).resynced().
				build(),
		},
		{
			name: "escape order matters",
			seq: syncTestSequences().
				forceSearch().
				onSearching(0xff, 'D', 'N').withProgress(ProgressNone).
				onSearching('E', 0xff, 'D').withProgress(ProgressSawE).
				onSearching('N', 'D', 0xff).resynced().
				build(),
		},
		{
			name: "strict resets on mismatch",
			mode: EscapeStrict,
			seq: syncTestSequences().
				forceSearch().
				onSearching('E', 0x02, 'N', 'D', 0xff).withProgress(ProgressNone).
				onSearching('E', 'N', 'E').withProgress(ProgressSawE).
				onSearching('N', 'D').withProgress(ProgressSawEND).
				onSearching(0xff).resynced().
				build(),
		},
		{
			name: "partial frame discarded by force search",
			seq: syncTestSequences().
				onSynced(f1[:5]...).
				forceSearch().
				onSearching('E', 'N', 'D').withProgress(ProgressSawEND).
				onSearching(0xff).resynced().
				onSynced(f2[:]...).frameReady(f2).
				build(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var s Synchronizer
			s.Escape.Mode = tc.mode
			for n, step := range tc.seq {
				if step.search {
					s.ForceSearch()
					require.Equal(t, Searching, s.State())
					require.Equal(t, 0, s.Index())
					continue
				}
				var pr ParseResult
				for i, b := range step.in {
					pr = s.Parse(b)
					if i+1 < len(step.in) {
						require.Equalf(t, step.expect, pr, "step[%d][%d] expect mismatch", n, i)
					}
				}
				require.Equalf(t, step.final, pr, "step[%d] final mismatch", n)
				if step.state() == Searching {
					require.Equalf(t, step.progress, s.Escape.Progress(), "step[%d] progress", n)
				}
				if step.consume {
					require.Equal(t, *step.frame, *pr.Frame)
					s.Consume()
					require.Equal(t, 0, s.Index())
				}
			}
		})
	}
}

func (s syncTestStep) state() State {
	return s.final.State
}

func TestSynchronizerDropsUnconsumed(t *testing.T) {
	var s Synchronizer
	f := testFrame(1)
	for _, b := range f {
		s.Parse(b)
	}
	pr := s.Parse('X')
	require.True(t, pr.Dropped)
	require.NotNil(t, pr.Frame)
	require.Equal(t, f, *pr.Frame)
	s.Consume()
	pr = s.Parse('C')
	require.False(t, pr.Dropped)
	require.Nil(t, pr.Frame)
	require.Equal(t, 1, s.Index())
}

func TestSynchronizerEscapeWhileSynced(t *testing.T) {
	var s Synchronizer
	for _, b := range EscapeSequence {
		pr := s.Parse(b)
		require.False(t, pr.Resynced)
	}
	require.Equal(t, len(EscapeSequence), s.Index())
}

func TestFrame(t *testing.T) {
	cmd := Command{Positions: [Positions]byte{10, 20, 30, 40, 50, 60}, Switches: 0x40}
	f := cmd.Frame()
	require.Equal(t, Frame{'C', 10, 20, 30, 40, 50, 60, 0x40, 0, 10 ^ 20 ^ 30 ^ 40 ^ 50 ^ 60 ^ 0x40, 0, 0, 0, 0}, f)
	require.True(t, f.ChecksumOK())
	require.Equal(t, FrameMarker, f.Marker())
	require.Equal(t, byte(10), f.Position(1))
	require.Equal(t, byte(60), f.Position(6))
	require.Equal(t, byte(0x40), f.Switches())
	require.Equal(t, cmd, f.Command())

	f[8] = 1
	require.False(t, f.ChecksumOK())

	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(FrameSize), n)

	parsed, err := FrameFrom(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, f, parsed)

	_, err = FrameFrom(buf.Bytes()[:FrameSize-1])
	require.Equal(t, ErrFrameSize, err)
}

func TestAck(t *testing.T) {
	require.True(t, AckAccepted.IsValid())
	require.True(t, AckChecksum.IsValid())
	require.True(t, AckNotSynced.IsValid())
	require.False(t, Ack('C').IsValid())
	require.Equal(t, "unknown", Ack(0).String())
}

func TestParseEscapeMode(t *testing.T) {
	mode, err := ParseEscapeMode("")
	require.NoError(t, err)
	require.Equal(t, EscapeLatched, mode)
	mode, err = ParseEscapeMode("Strict")
	require.NoError(t, err)
	require.Equal(t, EscapeStrict, mode)
	_, err = ParseEscapeMode("loose")
	require.Error(t, err)
	require.Equal(t, "latched", EscapeLatched.String())
}

func TestStateValue(t *testing.T) {
	var v StateValue
	require.Equal(t, Synchronized, v.Load())
	v.Store(Searching)
	require.Equal(t, Searching, v.Load())
}
