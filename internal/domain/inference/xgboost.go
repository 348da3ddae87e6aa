package inference

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Objectives understood by TreeEnsemble.
const (
	objBinaryLogistic = "binary:logistic"
	objBinaryLogitRaw = "binary:logitraw"
	objRegLogistic    = "reg:logistic"
	objMultiSoftprob  = "multi:softprob"
	objMultiSoftmax   = "multi:softmax"

	defaultBaseScore = 0.5
)

// TreeEnsemble is a gradient-boosted tree classifier decoded from XGBoost's
// JSON model format.
type TreeEnsemble struct {
	objective    string
	groups       int // 1 for binary objectives, num_class otherwise
	numFeatures  int
	baseMargin   []float64
	trees        []tree
	featureNames []string
	importance   []float64
}

type tree struct {
	left        []int
	right       []int
	feature     []int
	cond        []float32 // split threshold, or leaf value when left == -1
	defaultLeft []bool
	group       int
	weight      float64
}

type xgbDocument struct {
	Learner struct {
		FeatureNames    []string        `json:"feature_names"`
		GradientBooster json.RawMessage `json:"gradient_booster"`
		ModelParam      struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbBooster struct {
	Name  string    `json:"name"`
	Model *xgbModel `json:"model"`
	// dart wraps a gbtree booster and scales each tree by weight_drop.
	GBTree *struct {
		Model xgbModel `json:"model"`
	} `json:"gbtree"`
	WeightDrop []float64 `json:"weight_drop"`
}

type xgbModel struct {
	Trees    []xgbTree `json:"trees"`
	TreeInfo []int     `json:"tree_info"`
}

type xgbTree struct {
	LeftChildren    []int      `json:"left_children"`
	RightChildren   []int      `json:"right_children"`
	SplitIndices    []int      `json:"split_indices"`
	SplitConditions []float32  `json:"split_conditions"`
	DefaultLeft     []flexBool `json:"default_left"`
	LossChanges     []float64  `json:"loss_changes"`
	SplitType       []int      `json:"split_type"`
}

// flexBool accepts both JSON booleans and 0/1 integers; XGBoost has written
// default_left in both forms across releases.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// DecodeTreeEnsemble reads an XGBoost JSON model.
func DecodeTreeEnsemble(r io.Reader) (*TreeEnsemble, error) {
	var doc xgbDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: xgboost model: %w", ErrDecode, err)
	}
	l := doc.Learner
	if len(l.GradientBooster) == 0 {
		return nil, fmt.Errorf("%w: xgboost model: missing gradient_booster", ErrDecode)
	}

	var booster xgbBooster
	if err := json.Unmarshal(l.GradientBooster, &booster); err != nil {
		return nil, fmt.Errorf("%w: xgboost booster: %w", ErrDecode, err)
	}
	var m xgbModel
	var weights []float64
	switch booster.Name {
	case "gbtree", "":
		if booster.Model == nil {
			return nil, fmt.Errorf("%w: gbtree booster without model", ErrDecode)
		}
		m = *booster.Model
	case "dart":
		if booster.GBTree == nil {
			return nil, fmt.Errorf("%w: dart booster without gbtree", ErrDecode)
		}
		m = booster.GBTree.Model
		weights = booster.WeightDrop
	default:
		return nil, fmt.Errorf("%w: booster %q", ErrUnsupported, booster.Name)
	}

	numClass, err := parseIntParam(l.ModelParam.NumClass)
	if err != nil {
		return nil, fmt.Errorf("%w: num_class: %w", ErrDecode, err)
	}
	numFeatures, err := parseIntParam(l.ModelParam.NumFeature)
	if err != nil {
		return nil, fmt.Errorf("%w: num_feature: %w", ErrDecode, err)
	}
	if numFeatures == 0 {
		numFeatures = len(l.FeatureNames)
	}
	if len(l.FeatureNames) > 0 && len(l.FeatureNames) != numFeatures {
		return nil, fmt.Errorf("%w: %d feature names for %d features", ErrInconsistent, len(l.FeatureNames), numFeatures)
	}

	e := &TreeEnsemble{
		objective:    l.Objective.Name,
		numFeatures:  numFeatures,
		featureNames: append([]string(nil), l.FeatureNames...),
	}
	switch e.objective {
	case objBinaryLogistic, objBinaryLogitRaw, objRegLogistic:
		e.groups = 1
	case objMultiSoftprob, objMultiSoftmax:
		if numClass < 2 {
			return nil, fmt.Errorf("%w: %s with num_class %d", ErrInconsistent, e.objective, numClass)
		}
		e.groups = numClass
	default:
		return nil, fmt.Errorf("%w: objective %q", ErrUnsupported, e.objective)
	}

	base, err := parseBaseScore(l.ModelParam.BaseScore, e.groups)
	if err != nil {
		return nil, fmt.Errorf("%w: base_score: %w", ErrDecode, err)
	}
	switch e.objective {
	case objBinaryLogistic, objBinaryLogitRaw, objRegLogistic:
		// Stored in probability space; trees add to the margin.
		// logitraw only skips the output transform.
		for i, p := range base {
			base[i] = probToMargin(p)
		}
	}
	e.baseMargin = base

	if len(m.TreeInfo) != len(m.Trees) {
		return nil, fmt.Errorf("%w: %d trees but %d tree_info entries", ErrInconsistent, len(m.Trees), len(m.TreeInfo))
	}
	if weights != nil && len(weights) != len(m.Trees) {
		return nil, fmt.Errorf("%w: %d trees but %d weight_drop entries", ErrInconsistent, len(m.Trees), len(weights))
	}

	gain := make([]float64, numFeatures)
	splits := make([]int, numFeatures)
	e.trees = make([]tree, len(m.Trees))
	for i, xt := range m.Trees {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		t, err := compileTree(xt, m.TreeInfo[i], w, e.groups, numFeatures)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		e.trees[i] = t
		for n := range t.left {
			if t.left[n] == -1 {
				continue
			}
			f := t.feature[n]
			splits[f]++
			if n < len(xt.LossChanges) {
				gain[f] += xt.LossChanges[n]
			}
		}
	}
	e.importance = normalizedAverageGain(gain, splits)
	return e, nil
}

func compileTree(xt xgbTree, group int, weight float64, groups, numFeatures int) (tree, error) {
	n := len(xt.LeftChildren)
	if n == 0 {
		return tree{}, fmt.Errorf("%w: empty tree", ErrInconsistent)
	}
	if len(xt.RightChildren) != n || len(xt.SplitIndices) != n || len(xt.SplitConditions) != n || len(xt.DefaultLeft) != n {
		return tree{}, fmt.Errorf("%w: node arrays differ in length", ErrInconsistent)
	}
	for _, st := range xt.SplitType {
		if st != 0 {
			return tree{}, fmt.Errorf("%w: categorical splits", ErrUnsupported)
		}
	}
	if group < 0 || group >= groups {
		return tree{}, fmt.Errorf("%w: group %d outside [0,%d)", ErrInconsistent, group, groups)
	}
	t := tree{
		left:        xt.LeftChildren,
		right:       xt.RightChildren,
		feature:     xt.SplitIndices,
		cond:        xt.SplitConditions,
		defaultLeft: make([]bool, n),
		group:       group,
		weight:      weight,
	}
	for i := 0; i < n; i++ {
		t.defaultLeft[i] = bool(xt.DefaultLeft[i])
		if t.left[i] == -1 {
			continue
		}
		if t.left[i] <= 0 || t.left[i] >= n || t.right[i] <= 0 || t.right[i] >= n {
			return tree{}, fmt.Errorf("%w: node %d has child outside tree", ErrInconsistent, i)
		}
		if t.feature[i] < 0 || t.feature[i] >= numFeatures {
			return tree{}, fmt.Errorf("%w: node %d splits on feature %d of %d", ErrInconsistent, i, t.feature[i], numFeatures)
		}
	}
	return t, nil
}

// leaf walks the tree for row and returns the leaf value. Thresholds are
// float32 in the model, so the comparison is done in float32 as well.
func (t *tree) leaf(row []float64) (float64, error) {
	node := 0
	for steps := 0; steps <= len(t.left); steps++ {
		if t.left[node] == -1 {
			return float64(t.cond[node]), nil
		}
		v := row[t.feature[node]]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case float32(v) < t.cond[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return 0, fmt.Errorf("%w: cycle in tree", ErrInconsistent)
}

// PredictProba implements TabularClassifier.
func (e *TreeEnsemble) PredictProba(row []float64) ([]float64, error) {
	if len(row) != e.numFeatures {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", ErrInputShape, len(row), e.numFeatures)
	}
	margin := append([]float64(nil), e.baseMargin...)
	for i := range e.trees {
		t := &e.trees[i]
		v, err := t.leaf(row)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		margin[t.group] += t.weight * v
	}
	if e.groups == 1 {
		p := sigmoid(margin[0])
		return []float64{1 - p, p}, nil
	}
	softmax(margin)
	return margin, nil
}

// NumFeatures implements TabularClassifier.
func (e *TreeEnsemble) NumFeatures() int { return e.numFeatures }

// NumClasses is the width of PredictProba's output.
func (e *TreeEnsemble) NumClasses() int {
	if e.groups == 1 {
		return 2
	}
	return e.groups
}

// FeatureNames implements TabularClassifier.
func (e *TreeEnsemble) FeatureNames() []string {
	return append([]string(nil), e.featureNames...)
}

// FeatureImportance implements TabularClassifier. Values are the average
// split gain per feature, normalized to sum to one.
func (e *TreeEnsemble) FeatureImportance() []float64 {
	return append([]float64(nil), e.importance...)
}

func normalizedAverageGain(gain []float64, splits []int) []float64 {
	out := make([]float64, len(gain))
	var total float64
	for i := range gain {
		if splits[i] > 0 {
			out[i] = gain[i] / float64(splits[i])
			total += out[i]
		}
	}
	if total <= 0 {
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

func parseIntParam(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// parseBaseScore accepts the scalar form ("5E-1") and the vector form
// ("[5E-1,5E-1]") written by newer releases.
func parseBaseScore(s string, groups int) ([]float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	out := make([]float64, groups)
	if s == "" {
		for i := range out {
			out[i] = defaultBaseScore
		}
		return out, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 1 && len(parts) != groups {
		return nil, fmt.Errorf("%d values for %d outputs", len(parts), groups)
	}
	for i := range out {
		p := parts[0]
		if len(parts) == groups {
			p = parts[i]
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func probToMargin(p float64) float64 {
	const eps = 1e-16
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}
