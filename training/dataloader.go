package training

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tsawler/go-gstm/gstm"
)

// Sample is one training pair. Input and target are generated
// independently, so their lengths usually differ.
type Sample struct {
	Input  gstm.Sequence
	Target gstm.Sequence
}

// DataConfig describes a synthetic dataset
type DataConfig struct {
	Channels  int
	Width     int
	MinLength int
	MaxLength int
	Count     int
}

// DefaultDataConfig returns the standard sequence lengths and sample count
// for the given channel layout
func DefaultDataConfig(channels, width int) DataConfig {
	return DataConfig{
		Channels:  channels,
		Width:     width,
		MinLength: 50,
		MaxLength: 75,
		Count:     150,
	}
}

func (c DataConfig) validate() error {
	if c.Channels <= 0 || c.Width <= 0 {
		return fmt.Errorf("channels and width must be positive, got %d and %d", c.Channels, c.Width)
	}
	if c.MinLength <= 0 || c.MaxLength < c.MinLength {
		return fmt.Errorf("invalid sequence length range [%d, %d]", c.MinLength, c.MaxLength)
	}
	if c.Count < 0 {
		return fmt.Errorf("sample count must not be negative, got %d", c.Count)
	}
	return nil
}

// Dataset is a fixed list of random samples, materialized at construction
type Dataset struct {
	config  DataConfig
	samples []Sample
}

// MakeData builds a dataset of count samples whose sequence lengths are
// uniform in [minLen, maxLen] and whose values are uniform in [0, 1).
// A nil rng is seeded from the clock.
func MakeData(channels, width, minLen, maxLen, count int, rng *rand.Rand) (*Dataset, error) {
	return NewDataset(DataConfig{
		Channels:  channels,
		Width:     width,
		MinLength: minLen,
		MaxLength: maxLen,
		Count:     count,
	}, rng)
}

// NewDataset builds a dataset from cfg
func NewDataset(cfg DataConfig, rng *rand.Rand) (*Dataset, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ds := &Dataset{config: cfg, samples: make([]Sample, cfg.Count)}
	for i := range ds.samples {
		ds.samples[i] = Sample{
			Input:  ds.generate(rng),
			Target: ds.generate(rng),
		}
	}
	return ds, nil
}

func (ds *Dataset) generate(rng *rand.Rand) gstm.Sequence {
	cfg := ds.config
	length := cfg.MinLength + rng.Intn(cfg.MaxLength-cfg.MinLength+1)
	seq := make(gstm.Sequence, length)
	for t := range seq {
		seq[t] = make([][]float64, cfg.Channels)
		for c := range seq[t] {
			vec := make([]float64, cfg.Width)
			for i := range vec {
				vec[i] = rng.Float64()
			}
			seq[t][c] = vec
		}
	}
	return seq
}

// Len returns the number of samples
func (ds *Dataset) Len() int {
	return len(ds.samples)
}

// Get returns the stored sample at idx
func (ds *Dataset) Get(idx int) (Sample, error) {
	if idx < 0 || idx >= len(ds.samples) {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.samples))
	}
	return ds.samples[idx], nil
}

// Config returns the configuration the dataset was built from
func (ds *Dataset) Config() DataConfig {
	return ds.config
}

// DataLoader walks a dataset one sample at a time, optionally in a fresh
// random order every epoch
type DataLoader struct {
	dataset  *Dataset
	shuffle  bool
	rng      *rand.Rand
	indices  []int
	position int
	mutex    sync.Mutex
}

// NewDataLoader creates a loader over dataset. rng is only used when
// shuffle is set; nil is seeded from the clock.
func NewDataLoader(dataset *Dataset, shuffle bool, rng *rand.Rand) *DataLoader {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}
	dl := &DataLoader{
		dataset: dataset,
		shuffle: shuffle,
		rng:     rng,
		indices: indices,
	}
	dl.Reset()
	return dl
}

// Len returns the number of samples in an epoch
func (dl *DataLoader) Len() int {
	return len(dl.indices)
}

// Reset starts a new epoch
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// HasNext reports whether the current epoch has samples left
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// Next returns the next sample of the epoch
func (dl *DataLoader) Next() (Sample, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return Sample{}, fmt.Errorf("no more samples in epoch")
	}
	idx := dl.indices[dl.position]
	dl.position++
	return dl.dataset.Get(idx)
}
