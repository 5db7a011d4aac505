// Package errors はエンジン全体のエラーハンドリングを提供します。
// 学習・推論・永続化の各層で発生するエラーを構造化された型として表現し、
// cockroachdb/errors によるスタックトレースと zerolog による構造化ログ出力に対応します。
package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	入力検証エラー
//
// ===========================================================================

// ValidationError はデータセットや問題設定の検証に失敗した場合のエラーです。
// 学習開始前に必ず検出され、リクエストは即座に拒否されます。
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("automl: validation failed for '%s': %s (got: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("automl: validation failed for '%s': %s", e.Field, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(field, reason string, value interface{}) error {
	err := &ValidationError{Field: field, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ColumnNotFoundError は宣言された列がデータセットに存在しない場合のエラーです。
// 利用可能な列の一覧を保持し、呼び出し側が自己修正できるようにします。
type ColumnNotFoundError struct {
	Missing   []string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("automl: columns not found: [%s]. Available columns: [%s]",
		strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ColumnNotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Strs("missing", e.Missing).
		Strs("available", e.Available).
		Str("type", "ColumnNotFoundError")
}

// NewColumnNotFoundError は新しいColumnNotFoundErrorを作成し、スタックトレースを付与します。
func NewColumnNotFoundError(missing, available []string) error {
	err := &ColumnNotFoundError{Missing: missing, Available: available}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	推論時の特徴量エラー
//
// ===========================================================================

// MissingFeatureError は予測リクエストに必須の特徴量が欠けている場合のエラーです。
type MissingFeatureError struct {
	Feature string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("Missing feature: %s", e.Feature)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingFeatureError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("feature", e.Feature).
		Str("type", "MissingFeatureError")
}

// NewMissingFeatureError は新しいMissingFeatureErrorを作成し、スタックトレースを付与します。
func NewMissingFeatureError(feature string) error {
	err := &MissingFeatureError{Feature: feature}
	return errors.WithStack(err)
}

// UnknownCategoryError は学習時の語彙に存在しないカテゴリ値が
// 予測リクエストに含まれていた場合のエラーです。
// 有効な値の一覧を必ず列挙します。暗黙のマッピングは行いません。
type UnknownCategoryError struct {
	Column      string
	Value       string
	ValidValues []string
}

func (e *UnknownCategoryError) Error() string {
	vals := make([]string, len(e.ValidValues))
	copy(vals, e.ValidValues)
	sort.Strings(vals)
	return fmt.Sprintf("Unknown category '%s' for column '%s'; valid values: [%s]",
		e.Value, e.Column, strings.Join(vals, ", "))
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnknownCategoryError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Str("value", e.Value).
		Strs("valid_values", e.ValidValues).
		Str("type", "UnknownCategoryError")
}

// NewUnknownCategoryError は新しいUnknownCategoryErrorを作成し、スタックトレースを付与します。
func NewUnknownCategoryError(column, value string, validValues []string) error {
	err := &UnknownCategoryError{Column: column, Value: value, ValidValues: validValues}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	学習・選定エラー
//
// ===========================================================================

// NoViableCandidateError は全ての候補アルゴリズムの学習が失敗した場合のエラーです。
// 個々の失敗は候補ごとに記録されるため、このエラーはバッチ全体の失敗を意味します。
type NoViableCandidateError struct {
	ProblemType string
	Attempted   int
}

func (e *NoViableCandidateError) Error() string {
	return fmt.Sprintf("automl: no viable candidate: all %d %s algorithms failed to train",
		e.Attempted, e.ProblemType)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NoViableCandidateError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("problem_type", e.ProblemType).
		Int("attempted", e.Attempted).
		Str("type", "NoViableCandidateError")
}

// NewNoViableCandidateError は新しいNoViableCandidateErrorを作成し、スタックトレースを付与します。
func NewNoViableCandidateError(problemType string, attempted int) error {
	err := &NoViableCandidateError{ProblemType: problemType, Attempted: attempted}
	return errors.WithStack(err)
}

// NotFittedError はモデルが未学習の状態で `Predict` や `Transform` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("automl: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("automl: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	永続化エラー
//
// ===========================================================================

// NotFoundError は未知のmodelIdに対する取得・予測・削除のエラーです。
type NotFoundError struct {
	ModelID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Model not found: %s", e.ModelID)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_id", e.ModelID).
		Str("type", "NotFoundError")
}

// NewNotFoundError は新しいNotFoundErrorを作成し、スタックトレースを付与します。
func NewNotFoundError(modelID string) error {
	err := &NotFoundError{ModelID: modelID}
	return errors.WithStack(err)
}

// PersistenceError はモデルアーティファクトやメタデータインデックスの
// 読み書きに失敗した場合のエラーです。部分的な書き込みは残しません。
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("automl: %s: persistence failure at %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *PersistenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("path", e.Path).
		AnErr("cause", e.Err).
		Str("type", "PersistenceError")
}

// NewPersistenceError は新しいPersistenceErrorを作成し、スタックトレースを付与します。
func NewPersistenceError(op, path string, err error) error {
	perr := &PersistenceError{Op: op, Path: path, Err: err}
	return errors.WithStack(perr)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)
