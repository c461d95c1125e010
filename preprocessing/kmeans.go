package preprocessing

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlstack/core/model"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

func init() {
	model.Register(&KMeansFeatures{})
}

// KMeansFeatures はミニバッチK-meansでクラスタ中心を学習し、
// 各サンプルを全クラスタ中心までのユークリッド距離 (n×NClusters) に変換する
type KMeansFeatures struct {
	// NClusters はクラスタ数 (デフォルト: 8)
	NClusters int
	// MaxIter はミニバッチ更新の最大回数 (デフォルト: 100)
	MaxIter int
	// BatchSize はミニバッチのサンプル数 (デフォルト: 100)
	BatchSize int
	// NInit は初期化をやり直す回数。慣性が最小の結果を採用する (デフォルト: 3)
	NInit int
	// Tol は改善とみなす慣性の減少量
	Tol float64
	// MaxNoImprovement は改善なしで打ち切るまでの回数 (デフォルト: 10)
	MaxNoImprovement int
	// Seed は乱数シード。同じシードなら同じ中心が得られる
	Seed uint64

	// Centers はクラスタ中心 (NClusters×nFeatures)
	Centers [][]float64
	// Inertia はクラスタ内平方和誤差
	Inertia float64
	// NIter は採用した実行のイテレーション数
	NIter int

	State *model.StateManager
}

// KMeansOption はKMeansFeaturesの設定
type KMeansOption func(*KMeansFeatures)

// WithClusters はクラスタ数を設定する
func WithClusters(n int) KMeansOption {
	return func(k *KMeansFeatures) { k.NClusters = n }
}

// WithKMeansMaxIter は最大イテレーション数を設定する
func WithKMeansMaxIter(n int) KMeansOption {
	return func(k *KMeansFeatures) { k.MaxIter = n }
}

// WithBatchSize はミニバッチサイズを設定する
func WithBatchSize(n int) KMeansOption {
	return func(k *KMeansFeatures) { k.BatchSize = n }
}

// WithNInit は初期化の回数を設定する
func WithNInit(n int) KMeansOption {
	return func(k *KMeansFeatures) { k.NInit = n }
}

// WithSeed は乱数シードを設定する
func WithSeed(seed uint64) KMeansOption {
	return func(k *KMeansFeatures) { k.Seed = seed }
}

// NewKMeansFeatures は新しいKMeansFeaturesを作成する
func NewKMeansFeatures(opts ...KMeansOption) *KMeansFeatures {
	k := &KMeansFeatures{
		NClusters:        8,
		MaxIter:          100,
		BatchSize:        100,
		NInit:            3,
		MaxNoImprovement: 10,
		State:            model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Clone は同じ設定の未学習インスタンスを返す
func (k *KMeansFeatures) Clone() model.Transformer {
	return &KMeansFeatures{
		NClusters:        k.NClusters,
		MaxIter:          k.MaxIter,
		BatchSize:        k.BatchSize,
		NInit:            k.NInit,
		Tol:              k.Tol,
		MaxNoImprovement: k.MaxNoImprovement,
		Seed:             k.Seed,
		State:            model.NewStateManager(),
	}
}

// Fit はクラスタ中心を学習する。y は使用しない
func (k *KMeansFeatures) Fit(X, _ mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("KMeansFeatures.Fit", "empty data", errors.ErrEmptyData)
	}
	if k.NClusters < 1 {
		return errors.NewValueError("KMeansFeatures.Fit", fmt.Sprintf("n_clusters must be positive, got %d", k.NClusters))
	}
	if rows < k.NClusters {
		return errors.NewValueError("KMeansFeatures.Fit", fmt.Sprintf("サンプル数がクラスタ数より少ないです: %d < %d", rows, k.NClusters))
	}
	if k.State == nil {
		k.State = model.NewStateManager()
	}

	samples := make([][]float64, rows)
	for i := range samples {
		samples[i] = mat.Row(nil, i, X)
	}
	rng := rand.New(rand.NewPCG(k.Seed, k.Seed^0x5bd1e995))

	best := math.Inf(1)
	for run := 0; run < max(k.NInit, 1); run++ {
		centers, nIter := k.fitSingleRun(samples, rng)
		if inertia := computeInertia(samples, centers); inertia < best {
			best = inertia
			k.Centers = centers
			k.NIter = nIter
		}
	}
	k.Inertia = best

	k.State.SetFitted(cols, rows)
	return nil
}

// fitSingleRun は単一回のミニバッチK-meansを実行する
func (k *KMeansFeatures) fitSingleRun(samples [][]float64, rng *rand.Rand) ([][]float64, int) {
	centers := initPlusPlus(samples, k.NClusters, rng)
	counts := make([]int, len(centers))
	batch := min(max(k.BatchSize, 1), len(samples))

	prev := math.Inf(1)
	stale := 0
	iter := 0
	for ; iter < k.MaxIter; iter++ {
		for _, idx := range rng.Perm(len(samples))[:batch] {
			s := samples[idx]
			c := nearest(s, centers)
			counts[c]++
			eta := 1 / float64(counts[c])
			for j := range s {
				centers[c][j] = (1-eta)*centers[c][j] + eta*s[j]
			}
		}

		inertia := computeInertia(samples, centers)
		if prev-inertia <= k.Tol {
			stale++
			if stale >= k.MaxNoImprovement {
				break
			}
		} else {
			stale = 0
		}
		prev = inertia
	}
	return centers, iter
}

// initPlusPlus はk-means++で初期中心を選ぶ
func initPlusPlus(samples [][]float64, n int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, n)
	centers = append(centers, append([]float64(nil), samples[rng.IntN(len(samples))]...))

	dist := make([]float64, len(samples))
	for len(centers) < n {
		total := 0.0
		for i, s := range samples {
			d := floats.Distance(s, centers[nearest(s, centers)], 2)
			dist[i] = d * d
			total += dist[i]
		}

		pick := 0
		target := rng.Float64() * total
		cum := 0.0
		for i, d := range dist {
			cum += d
			if cum >= target {
				pick = i
				break
			}
		}
		centers = append(centers, append([]float64(nil), samples[pick]...))
	}
	return centers
}

func nearest(s []float64, centers [][]float64) int {
	best, idx := math.Inf(1), 0
	for c, center := range centers {
		if d := floats.Distance(s, center, 2); d < best {
			best, idx = d, c
		}
	}
	return idx
}

func computeInertia(samples [][]float64, centers [][]float64) float64 {
	inertia := 0.0
	for _, s := range samples {
		d := floats.Distance(s, centers[nearest(s, centers)], 2)
		inertia += d * d
	}
	return inertia
}

// Transform は各サンプルから全クラスタ中心までの距離を返す
func (k *KMeansFeatures) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := k.State.RequireFitted("KMeansFeatures", "Transform"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := k.State.RequireFeatures("KMeansFeatures.Transform", cols); err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, len(k.Centers), nil)
	s := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(s, i, X)
		for c, center := range k.Centers {
			out.Set(i, c, floats.Distance(s, center, 2))
		}
	}
	return out, nil
}

// Labels は各サンプルの最近傍クラスタ番号を返す
func (k *KMeansFeatures) Labels(X mat.Matrix) ([]int, error) {
	if err := k.State.RequireFitted("KMeansFeatures", "Labels"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := k.State.RequireFeatures("KMeansFeatures.Labels", cols); err != nil {
		return nil, err
	}
	labels := make([]int, rows)
	s := make([]float64, cols)
	for i := range labels {
		mat.Row(s, i, X)
		labels[i] = nearest(s, k.Centers)
	}
	return labels, nil
}

func (k *KMeansFeatures) String() string {
	return fmt.Sprintf("KMeansFeatures(n_clusters=%d, seed=%d)", k.NClusters, k.Seed)
}
