package align

import (
	"context"
	"strings"

	"github.com/voxpipe-ai/voxpipe/internal/pipeline"
)

// Heuristic derives word timings from the transcript alone, without a
// second acoustic pass. Segments that carry token-level timings use them
// directly; otherwise the segment span is divided evenly across its words.
type Heuristic struct {
	MinWordDurationMS int64
}

func NewHeuristic(minWordDurationMS int64) Heuristic {
	return Heuristic{MinWordDurationMS: minWordDurationMS}
}

// Control tokens like [_BEG_] mark decoder state, not speech.
func isControlToken(token string) bool {
	return strings.HasPrefix(token, "[_") && strings.HasSuffix(token, "]")
}

func (h Heuristic) Align(_ context.Context, req Request) ([]pipeline.AlignedWord, error) {
	words := []pipeline.AlignedWord{}

	for _, segment := range req.Transcript.Segments {
		if len(segment.Tokens) > 0 {
			for _, token := range segment.Tokens {
				trimmed := strings.TrimSpace(token.Text)
				if trimmed == "" || isControlToken(trimmed) {
					continue
				}
				endMS := token.EndMS
				if min := token.StartMS + h.MinWordDurationMS; endMS < min {
					endMS = min
				}
				words = append(words, pipeline.AlignedWord{
					Word:       trimmed,
					StartMS:    token.StartMS,
					EndMS:      endMS,
					Confidence: token.Confidence,
				})
			}
			continue
		}

		fields := strings.Fields(segment.Text)
		if len(fields) == 0 {
			continue
		}
		total := segment.EndMS - segment.StartMS
		if total < 0 {
			total = 0
		}
		each := total / int64(len(fields))
		if each < h.MinWordDurationMS {
			each = h.MinWordDurationMS
		}
		for idx, word := range fields {
			start := segment.StartMS + int64(idx)*each
			var end int64
			if idx == 0 {
				end = start + each
			} else {
				end = start + each/2
				if min := start + h.MinWordDurationMS; end < min {
					end = min
				}
			}
			words = append(words, pipeline.AlignedWord{
				Word:       word,
				StartMS:    start,
				EndMS:      end,
				Confidence: 0.8,
			})
		}
	}

	return words, nil
}
