package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/database"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
)

const shareTolerance = 1e-9

func newAssessmentServiceForTest(store *memStore, cfg AssessmentConfig) *AssessmentService {
	return NewAssessmentService(memTx{store}, memCourses{store}, memAssessments{store}, memResults{store}, memMarks{store}, nil, zap.NewNop(), NewMetricsService(), cfg)
}

func quizRequest(courseID int64, name string) CreateAssessmentRequest {
	return CreateAssessmentRequest{Name: name, Type: models.AssessmentQuiz, CourseID: courseID, SemesterID: 1}
}

func assertBucketShare(t *testing.T, store *memStore, courseID int64, typ models.AssessmentType, expected float64) {
	t.Helper()
	for _, a := range store.bucket(courseID, typ) {
		assert.InDelta(t, expected, a.NormalizedTotalMarks, shareTolerance, "assessment %d", a.ID)
	}
}

func TestAssessmentServiceCreateFirstTakesWholeBucket(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	created, err := svc.Create(context.Background(), CreateAssessmentRequest{Name: "Final", Type: models.AssessmentTerminal, CourseID: 1, SemesterID: 1})
	require.NoError(t, err)
	assert.Equal(t, 75.0, created.NormalizedTotalMarks)
	assert.NotZero(t, created.ID)
	assert.Equal(t, 1, store.commits)
}

func TestAssessmentServiceScenarioTwoQuizzesSplitEvenly(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 1)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	_, err := svc.Create(context.Background(), quizRequest(1, "Quiz 1"))
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), quizRequest(1, "Quiz 2"))
	require.NoError(t, err)

	assert.Equal(t, 7.5, second.NormalizedTotalMarks)
	assert.Len(t, store.bucket(1, models.AssessmentQuiz), 2)
	assertBucketShare(t, store, 1, models.AssessmentQuiz, 7.5)
}

func TestAssessmentServiceScenarioDeleteRestoresFullShare(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 1)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	first, err := svc.Create(context.Background(), quizRequest(1, "Quiz 1"))
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), quizRequest(1, "Quiz 2"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), second.ID))

	remaining := store.bucket(1, models.AssessmentQuiz)
	require.Len(t, remaining, 1)
	assert.Equal(t, first.ID, remaining[0].ID)
	assert.Equal(t, 15.0, remaining[0].NormalizedTotalMarks)
}

func TestAssessmentServiceRedistributionSumProperty(t *testing.T) {
	configs := []models.CreditConfig{{Theory: 3}, {Theory: 3, Lab: 1}, {Theory: 2, Lab: 1}}
	for _, cfg := range configs {
		for _, typ := range ExpectedTypes(cfg) {
			t.Run(fmt.Sprintf("%d+%d/%s", cfg.Theory, cfg.Lab, typ), func(t *testing.T) {
				store := newMemStore()
				store.addCourse(1, cfg.Theory, cfg.Lab)
				svc := newAssessmentServiceForTest(store, AssessmentConfig{})
				normalized, _ := SchemeMarks(cfg, typ)

				var ids []int64
				for k := 1; k <= 5; k++ {
					a, err := svc.Create(context.Background(), CreateAssessmentRequest{Name: "a", Type: typ, CourseID: 1, SemesterID: 1})
					require.NoError(t, err)
					ids = append(ids, a.ID)
					assertBucketShare(t, store, 1, typ, normalized/float64(k))
				}
				for i, id := range ids[:4] {
					require.NoError(t, svc.Delete(context.Background(), id))
					assertBucketShare(t, store, 1, typ, normalized/float64(len(ids)-i-1))
				}
			})
		}
	}
}

func TestAssessmentServiceCreateRescalesSiblingResults(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	existing := store.addAssessment(1, models.AssessmentQuiz, 15)
	q1 := store.addQuestion(existing.ID, 6, nil)
	q2 := store.addQuestion(existing.ID, 4, nil)
	store.addMark(7, q1.ID, 5)
	store.addMark(7, q2.ID, 3)
	store.addMark(8, q1.ID, 2)
	r7 := store.addResult(7, existing.ID, 15, 12)
	r8 := store.addResult(8, existing.ID, 15, 5)
	// a result without any raw marks scales to zero
	r9 := store.addResult(9, existing.ID, 15, 4)

	svc := newAssessmentServiceForTest(store, AssessmentConfig{})
	_, err := svc.Create(context.Background(), quizRequest(1, "Quiz 2"))
	require.NoError(t, err)

	got7 := store.results[r7.ID]
	assert.Equal(t, 7.5, got7.FinalTotalMarks)
	assert.InDelta(t, 8.0/10.0*7.5, got7.FinalObtainedMarks, shareTolerance)

	got8 := store.results[r8.ID]
	assert.Equal(t, 7.5, got8.FinalTotalMarks)
	assert.InDelta(t, 2.0/6.0*7.5, got8.FinalObtainedMarks, shareTolerance)

	got9 := store.results[r9.ID]
	assert.Equal(t, 7.5, got9.FinalTotalMarks)
	assert.Zero(t, got9.FinalObtainedMarks)
}

func TestAssessmentServiceDeleteRescalesAndCascades(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	a1 := store.addAssessment(1, models.AssessmentAssignment, 5)
	a2 := store.addAssessment(1, models.AssessmentAssignment, 5)
	a3 := store.addAssessment(1, models.AssessmentAssignment, 5)
	q1 := store.addQuestion(a1.ID, 10, nil)
	store.addMark(7, q1.ID, 9)
	r1 := store.addResult(7, a1.ID, 5, 4.5)
	q3 := store.addQuestion(a3.ID, 10, nil)
	store.addMark(7, q3.ID, 10)
	store.addResult(7, a3.ID, 5, 5)

	svc := newAssessmentServiceForTest(store, AssessmentConfig{})
	require.NoError(t, svc.Delete(context.Background(), a3.ID))

	assertBucketShare(t, store, 1, models.AssessmentAssignment, 7.5)
	assert.Equal(t, 7.5, store.results[r1.ID].FinalTotalMarks)
	assert.InDelta(t, 0.9*7.5, store.results[r1.ID].FinalObtainedMarks, shareTolerance)
	_, ok := store.resultFor(7, a3.ID)
	assert.False(t, ok)
	assert.NotContains(t, store.questions, q3.ID)
	for _, m := range store.marks {
		assert.NotEqual(t, q3.ID, m.QuestionID)
	}
	assert.Contains(t, store.assessments, a2.ID)
}

func TestAssessmentServiceDeleteTwiceReturnsNotFound(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	a := store.addAssessment(1, models.AssessmentMidterm, 45)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	require.NoError(t, svc.Delete(context.Background(), a.ID))
	err := svc.Delete(context.Background(), a.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAssessmentServiceDeleteLastLeavesBucketEmpty(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	a := store.addAssessment(1, models.AssessmentMidterm, 45)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	require.NoError(t, svc.Delete(context.Background(), a.ID))
	assert.Empty(t, store.bucket(1, models.AssessmentMidterm))
	assert.NotContains(t, store.calls, "Assessment.UpdateShare")
}

func TestAssessmentServiceCreateMissingCourse(t *testing.T) {
	store := newMemStore()
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	_, err := svc.Create(context.Background(), quizRequest(42, "Quiz"))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 1, store.rollbacks)
}

func TestAssessmentServiceCreateValidation(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	_, err := svc.Create(context.Background(), CreateAssessmentRequest{Name: "x", Type: "viva", CourseID: 1, SemesterID: 1})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), CreateAssessmentRequest{Type: models.AssessmentQuiz, CourseID: 1, SemesterID: 1})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, store.commits+store.rollbacks)
}

func TestAssessmentServiceUnsupportedConfigUsesZeroShare(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 4, 0)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	created, err := svc.Create(context.Background(), quizRequest(1, "Quiz"))
	require.NoError(t, err)
	assert.Zero(t, created.NormalizedTotalMarks)
}

func TestAssessmentServiceLabTypeInTheoryCourseUsesZeroShare(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	created, err := svc.Create(context.Background(), CreateAssessmentRequest{Name: "Lab", Type: models.AssessmentLabTerminal, CourseID: 1, SemesterID: 1})
	require.NoError(t, err)
	assert.Zero(t, created.NormalizedTotalMarks)
}

func TestAssessmentServiceStrictConfigRejects(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 4, 0)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{StrictCreditConfig: true})

	_, err := svc.Create(context.Background(), quizRequest(1, "Quiz"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidConfiguration)
	assert.Empty(t, store.assessments)
}

func TestAssessmentServiceFailureRollsBackWholeUnit(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	existing := store.addAssessment(1, models.AssessmentQuiz, 15)
	q := store.addQuestion(existing.ID, 10, nil)
	store.addMark(7, q.ID, 5)
	r := store.addResult(7, existing.ID, 15, 7.5)
	store.fail["Assessment.Insert"] = errors.New("disk full")

	svc := newAssessmentServiceForTest(store, AssessmentConfig{})
	_, err := svc.Create(context.Background(), quizRequest(1, "Quiz 2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrTransactionFailed)

	assert.Equal(t, 15.0, store.assessments[existing.ID].NormalizedTotalMarks)
	assert.Equal(t, 7.5, store.results[r.ID].FinalObtainedMarks)
	assert.Len(t, store.assessments, 1)
}

func TestAssessmentServiceSerializationFailureIsConcurrentModification(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	store.addAssessment(1, models.AssessmentQuiz, 15)
	store.fail["Assessment.UpdateShare"] = fmt.Errorf("%w: %v", database.ErrSerialization, &pq.Error{Code: "40001"})

	svc := newAssessmentServiceForTest(store, AssessmentConfig{})
	_, err := svc.Create(context.Background(), quizRequest(1, "Quiz 2"))
	assert.ErrorIs(t, err, appErrors.ErrConcurrentModification)
}

func TestAssessmentServiceCancelledContextIsTimeout(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	store.fail["Course.LockByID"] = context.DeadlineExceeded

	svc := newAssessmentServiceForTest(store, AssessmentConfig{})
	_, err := svc.Create(context.Background(), quizRequest(1, "Quiz"))
	assert.ErrorIs(t, err, appErrors.ErrTimeout)
}

func TestAssessmentServiceConcurrentCreatesKeepBucketConsistent(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 1)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	const workers = 6
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), quizRequest(1, fmt.Sprintf("Quiz %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, store.bucket(1, models.AssessmentQuiz), workers)
	assertBucketShare(t, store, 1, models.AssessmentQuiz, 15.0/workers)
}

func TestAssessmentServiceGetAndList(t *testing.T) {
	store := newMemStore()
	store.addCourse(1, 3, 0)
	quiz := store.addAssessment(1, models.AssessmentQuiz, 15)
	store.addAssessment(1, models.AssessmentMidterm, 45)
	svc := newAssessmentServiceForTest(store, AssessmentConfig{})

	got, err := svc.Get(context.Background(), quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.ID, got.ID)

	_, err = svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	all, err := svc.List(context.Background(), models.AssessmentFilter{CourseID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	quizzes, err := svc.List(context.Background(), models.AssessmentFilter{CourseID: 1, Type: models.AssessmentQuiz})
	require.NoError(t, err)
	assert.Len(t, quizzes, 1)

	_, err = svc.List(context.Background(), models.AssessmentFilter{CourseID: 1, Type: "viva"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.List(context.Background(), models.AssessmentFilter{CourseID: 2})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestScaleObtained(t *testing.T) {
	assert.Equal(t, 6.0, ScaleObtained(models.StudentMarkTotals{TotalMarks: 10, ObtainedMarks: 8}, 7.5))
	assert.Zero(t, ScaleObtained(models.StudentMarkTotals{}, 7.5))
}
