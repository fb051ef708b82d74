package tcorex

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/corexlab/tcorex/compress"
	"github.com/corexlab/tcorex/corex"
	"github.com/corexlab/tcorex/internal/logging"
	"github.com/corexlab/tcorex/internal/options"
)

// Container layout: magic, version, kind, compression type, two reserved
// bytes, payload length (uint64 LE), xxhash64 of the compressed payload
// (uint64 LE), then the codec-compressed gob payload.
const (
	saveMagic   = "TCX1"
	saveVersion = 1
	headerSize  = 4 + 1 + 1 + 1 + 2 + 8 + 8
)

const (
	kindTemporal byte = 1
	kindPooled   byte = 2
)

// ErrCorrupted is returned by Load when the container fails checksum or
// structural validation.
var ErrCorrupted = errors.New("tcorex: corrupted model file")

type savedPeriod struct {
	Weights  []float64
	Loadings []float64
	Noise    []float64
	Mean     []float64
	Scale    []float64
}

type savedModel struct {
	NHidden    int
	NVar       int
	L1         float64
	Gamma      float64
	NumPeriods int
	Periods    []savedPeriod
}

type saveConfig struct {
	codec compress.Type
}

// SaveOption configures Save.
type SaveOption = options.Option[*saveConfig]

// WithCompression selects the payload codec. Default is no compression.
func WithCompression(t compress.Type) SaveOption {
	return options.New(func(c *saveConfig) error {
		if _, err := compress.GetCodec(t); err != nil {
			return fmt.Errorf("tcorex: %w", err)
		}
		c.codec = t
		return nil
	})
}

// Save writes a fitted model to path. Loading the file reconstructs a
// fitted model whose Covariance and Clusters outputs are bit-identical to
// m's, without refitting.
func Save(m Model, path string, opts ...SaveOption) error {
	var cfg saveConfig
	if err := options.Apply(&cfg, opts...); err != nil {
		return err
	}

	kind, sm, err := snapshot(m)
	if err != nil {
		return err
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(sm); err != nil {
		return fmt.Errorf("tcorex: encode model: %w", err)
	}

	codec, err := compress.GetCodec(cfg.codec)
	if err != nil {
		return fmt.Errorf("tcorex: %w", err)
	}
	compressed, err := codec.Compress(payload.Bytes())
	if err != nil {
		return fmt.Errorf("tcorex: compress model: %w", err)
	}

	buf := make([]byte, headerSize, headerSize+len(compressed))
	copy(buf[0:4], saveMagic)
	buf[4] = saveVersion
	buf[5] = kind
	buf[6] = byte(cfg.codec)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(len(compressed)))
	binary.LittleEndian.PutUint64(buf[17:25], xxhash.Sum64(compressed))
	buf = append(buf, compressed...)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("tcorex: write model: %w", err)
	}

	return nil
}

// Load reads a model written by Save and returns it in the fitted state.
// The concrete type is *TCorex or *Pooled depending on what was saved.
func Load(path string) (Model, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tcorex: read model: %w", err)
	}
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupted)
	}
	if string(buf[0:4]) != saveMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupted)
	}
	if buf[4] != saveVersion {
		return nil, fmt.Errorf("tcorex: unsupported model file version %d", buf[4])
	}
	kind := buf[5]

	codec, err := compress.GetCodec(compress.Type(buf[6]))
	if err != nil {
		return nil, fmt.Errorf("tcorex: %w", err)
	}

	payloadLen := binary.LittleEndian.Uint64(buf[9:17])
	wantSum := binary.LittleEndian.Uint64(buf[17:25])
	compressed := buf[headerSize:]
	if uint64(len(compressed)) != payloadLen {
		return nil, fmt.Errorf("%w: payload length mismatch", ErrCorrupted)
	}
	if xxhash.Sum64(compressed) != wantSum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupted)
	}

	payload, err := codec.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	var sm savedModel
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&sm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	return restore(kind, &sm)
}

func snapshot(m Model) (byte, *savedModel, error) {
	switch v := m.(type) {
	case *TCorex:
		params, err := v.Params()
		if err != nil {
			return 0, nil, err
		}
		sm := &savedModel{
			NHidden:    v.nHidden,
			NVar:       params[0].NVar,
			L1:         v.cfg.l1,
			Gamma:      v.cfg.gamma,
			NumPeriods: len(params),
		}
		for _, p := range params {
			sm.Periods = append(sm.Periods, toSavedPeriod(p))
		}
		return kindTemporal, sm, nil

	case *Pooled:
		p, err := v.Params()
		if err != nil {
			return 0, nil, err
		}
		sm := &savedModel{
			NHidden:    v.nHidden,
			NVar:       p.NVar,
			NumPeriods: v.nt,
			Periods:    []savedPeriod{toSavedPeriod(p)},
		}
		return kindPooled, sm, nil

	default:
		return 0, nil, fmt.Errorf("tcorex: cannot save model of type %T", m)
	}
}

func restore(kind byte, sm *savedModel) (Model, error) {
	if sm.NHidden <= 0 || sm.NVar <= 0 || sm.NumPeriods <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions", ErrCorrupted)
	}

	switch kind {
	case kindTemporal:
		if len(sm.Periods) != sm.NumPeriods {
			return nil, fmt.Errorf("%w: %d period blocks for %d periods",
				ErrCorrupted, len(sm.Periods), sm.NumPeriods)
		}
		m := &TCorex{
			nHidden: sm.NHidden,
			cfg:     config{l1: sm.L1, gamma: sm.Gamma},
			logger:  logging.New(0),
			fitted:  true,
		}
		for t, p := range sm.Periods {
			restored, err := fromSavedPeriod(sm, p)
			if err != nil {
				return nil, fmt.Errorf("%w: period %d: %v", ErrCorrupted, t, err)
			}
			m.params = append(m.params, restored)
		}
		return m, nil

	case kindPooled:
		if len(sm.Periods) != 1 {
			return nil, fmt.Errorf("%w: pooled model with %d period blocks",
				ErrCorrupted, len(sm.Periods))
		}
		restored, err := fromSavedPeriod(sm, sm.Periods[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		return &Pooled{
			nHidden: sm.NHidden,
			cfg:     defaultConfig(),
			logger:  logging.New(0),
			fitted:  true,
			nt:      sm.NumPeriods,
			params:  restored,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown model kind %d", ErrCorrupted, kind)
	}
}

func toSavedPeriod(p *corex.Params) savedPeriod {
	return savedPeriod{
		Weights:  p.Weights,
		Loadings: p.Loadings,
		Noise:    p.Noise,
		Mean:     p.Mean,
		Scale:    p.Scale,
	}
}

func fromSavedPeriod(sm *savedModel, p savedPeriod) (*corex.Params, error) {
	if len(p.Weights) != sm.NHidden*sm.NVar || len(p.Loadings) != sm.NHidden*sm.NVar {
		return nil, errors.New("factor matrix size mismatch")
	}
	if len(p.Noise) != sm.NVar || len(p.Mean) != sm.NVar || len(p.Scale) != sm.NVar {
		return nil, errors.New("variable vector size mismatch")
	}

	return &corex.Params{
		NHidden:  sm.NHidden,
		NVar:     sm.NVar,
		Weights:  p.Weights,
		Loadings: p.Loadings,
		Noise:    p.Noise,
		Mean:     p.Mean,
		Scale:    p.Scale,
	}, nil
}
