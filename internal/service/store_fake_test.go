package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/obe-api/internal/models"
)

// memStore is an in-memory stand-in for the relational store. RunInTx
// serialises units of work and restores a snapshot when fn fails.
type memStore struct {
	mu          sync.Mutex
	courses     map[int64]models.Course
	semesters   map[int64]bool
	students    map[int64]bool
	enrollments map[int64][]enrollment
	assessments map[int64]models.Assessment
	questions   map[int64]models.Question
	marks       map[int64]models.Mark
	results     map[int64]models.Result
	clos        map[int64]models.CLO
	plos        map[int64]models.PLO
	mapping     map[int64][]int64 // plo id -> clo ids
	nextID      int64
	fail        map[string]error
	calls       []string
	commits     int
	rollbacks   int
}

type enrollment struct {
	courseID   int64
	semesterID int64
}

type memSnapshot struct {
	assessments map[int64]models.Assessment
	questions   map[int64]models.Question
	marks       map[int64]models.Mark
	results     map[int64]models.Result
	nextID      int64
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		courses:     map[int64]models.Course{},
		semesters:   map[int64]bool{},
		students:    map[int64]bool{},
		enrollments: map[int64][]enrollment{},
		assessments: map[int64]models.Assessment{},
		questions:   map[int64]models.Question{},
		marks:       map[int64]models.Mark{},
		results:     map[int64]models.Result{},
		clos:        map[int64]models.CLO{},
		plos:        map[int64]models.PLO{},
		mapping:     map[int64][]int64{},
		nextID:      1000,
		fail:        map[string]error{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) check(op string) error {
	s.calls = append(s.calls, op)
	return s.fail[op]
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		assessments: make(map[int64]models.Assessment, len(s.assessments)),
		questions:   make(map[int64]models.Question, len(s.questions)),
		marks:       make(map[int64]models.Mark, len(s.marks)),
		results:     make(map[int64]models.Result, len(s.results)),
		nextID:      s.nextID,
	}
	for k, v := range s.assessments {
		snap.assessments[k] = v
	}
	for k, v := range s.questions {
		snap.questions[k] = v
	}
	for k, v := range s.marks {
		snap.marks[k] = v
	}
	for k, v := range s.results {
		snap.results[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.assessments = snap.assessments
	s.questions = snap.questions
	s.marks = snap.marks
	s.results = snap.results
	s.nextID = snap.nextID
}

// seeding helpers

func (s *memStore) addCourse(id int64, theory, lab int) {
	s.courses[id] = models.Course{ID: id, Name: "Course", Code: "C", TheoryCreditHours: theory, LabCreditHours: lab}
}

func (s *memStore) addAssessment(courseID int64, typ models.AssessmentType, share float64) models.Assessment {
	a := models.Assessment{ID: s.id(), Name: string(typ), Type: typ, CourseID: courseID, SemesterID: 1, NormalizedTotalMarks: share, CreatedAt: time.Now()}
	s.assessments[a.ID] = a
	return a
}

func (s *memStore) addQuestion(assessmentID int64, marks float64, cloID *int64) models.Question {
	q := models.Question{ID: s.id(), AssessmentID: assessmentID, Text: "q", Marks: marks, CLOID: cloID}
	s.questions[q.ID] = q
	return q
}

func (s *memStore) addMark(studentID, questionID int64, obtained float64) {
	q := s.questions[questionID]
	m := models.Mark{ID: s.id(), StudentID: studentID, QuestionID: questionID, TotalMarks: q.Marks, ObtainedMarks: obtained}
	s.marks[m.ID] = m
}

func (s *memStore) addResult(studentID, assessmentID int64, total, obtained float64) models.Result {
	r := models.Result{ID: s.id(), StudentID: studentID, AssessmentID: assessmentID, FinalTotalMarks: total, FinalObtainedMarks: obtained}
	s.results[r.ID] = r
	return r
}

func (s *memStore) addCLO(id, courseID int64) {
	s.clos[id] = models.CLO{ID: id, CourseID: courseID, Name: "CLO"}
}

func (s *memStore) mapCLO(ploID int64, cloIDs ...int64) {
	if _, ok := s.plos[ploID]; !ok {
		s.plos[ploID] = models.PLO{ID: ploID, Name: "PLO"}
	}
	s.mapping[ploID] = append(s.mapping[ploID], cloIDs...)
}

func (s *memStore) resultFor(studentID, assessmentID int64) (models.Result, bool) {
	for _, r := range s.results {
		if r.StudentID == studentID && r.AssessmentID == assessmentID {
			return r, true
		}
	}
	return models.Result{}, false
}

func (s *memStore) bucket(courseID int64, typ models.AssessmentType) []models.Assessment {
	var out []models.Assessment
	for _, a := range s.assessments {
		if a.CourseID == courseID && a.Type == typ {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func ptr(v int64) *int64 { return &v }

// memTx

type memTx struct{ s *memStore }

func (t memTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	snap := t.s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		t.s.restore(snap)
		t.s.rollbacks++
		return err
	}
	t.s.commits++
	return nil
}

// memCourses

type memCourses struct{ s *memStore }

func (r memCourses) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	if err := r.s.check("Course.FindByID"); err != nil {
		return nil, err
	}
	c, ok := r.s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r memCourses) LockByID(ctx context.Context, id int64) (*models.Course, error) {
	if err := r.s.check("Course.LockByID"); err != nil {
		return nil, err
	}
	c, ok := r.s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r memCourses) ListEnrolled(ctx context.Context, studentID, semesterID int64) ([]models.Course, error) {
	if err := r.s.check("Course.ListEnrolled"); err != nil {
		return nil, err
	}
	var out []models.Course
	for _, e := range r.s.enrollments[studentID] {
		if e.semesterID == semesterID {
			out = append(out, r.s.courses[e.courseID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCourses) SemesterExists(ctx context.Context, id int64) (bool, error) {
	return r.s.semesters[id], r.s.check("Course.SemesterExists")
}

// memStudents

type memStudents struct{ s *memStore }

func (r memStudents) Exists(ctx context.Context, id int64) (bool, error) {
	if err := r.s.check("Student.Exists"); err != nil {
		return false, err
	}
	return r.s.students[id], nil
}

func (r memStudents) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	for _, e := range r.s.enrollments[studentID] {
		if e.courseID == courseID {
			return true, nil
		}
	}
	return false, r.s.check("Student.IsEnrolled")
}

// memAssessments

type memAssessments struct{ s *memStore }

func (r memAssessments) FindByID(ctx context.Context, id int64) (*models.Assessment, error) {
	if err := r.s.check("Assessment.FindByID"); err != nil {
		return nil, err
	}
	a, ok := r.s.assessments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (r memAssessments) LockByID(ctx context.Context, id int64) (*models.Assessment, error) {
	if err := r.s.check("Assessment.LockByID"); err != nil {
		return nil, err
	}
	a, ok := r.s.assessments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (r memAssessments) CountBucket(ctx context.Context, courseID int64, typ models.AssessmentType) (int, error) {
	if err := r.s.check("Assessment.CountBucket"); err != nil {
		return 0, err
	}
	return len(r.s.bucket(courseID, typ)), nil
}

func (r memAssessments) ListBucket(ctx context.Context, courseID int64, typ models.AssessmentType, excludeID int64) ([]models.Assessment, error) {
	if err := r.s.check("Assessment.ListBucket"); err != nil {
		return nil, err
	}
	var out []models.Assessment
	for _, a := range r.s.bucket(courseID, typ) {
		if a.ID != excludeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAssessments) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error) {
	if err := r.s.check("Assessment.List"); err != nil {
		return nil, err
	}
	var out []models.Assessment
	for _, a := range r.s.assessments {
		if a.CourseID == filter.CourseID && (filter.Type == "" || a.Type == filter.Type) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAssessments) Insert(ctx context.Context, a *models.Assessment) error {
	if err := r.s.check("Assessment.Insert"); err != nil {
		return err
	}
	a.ID = r.s.id()
	a.CreatedAt = time.Now()
	r.s.assessments[a.ID] = *a
	return nil
}

func (r memAssessments) UpdateShare(ctx context.Context, id int64, share float64) error {
	if err := r.s.check("Assessment.UpdateShare"); err != nil {
		return err
	}
	a := r.s.assessments[id]
	a.NormalizedTotalMarks = share
	r.s.assessments[id] = a
	return nil
}

func (r memAssessments) DeleteCascade(ctx context.Context, id int64) error {
	if err := r.s.check("Assessment.DeleteCascade"); err != nil {
		return err
	}
	if _, ok := r.s.assessments[id]; !ok {
		return sql.ErrNoRows
	}
	for qid, q := range r.s.questions {
		if q.AssessmentID != id {
			continue
		}
		for mid, m := range r.s.marks {
			if m.QuestionID == qid {
				delete(r.s.marks, mid)
			}
		}
		delete(r.s.questions, qid)
	}
	for rid, res := range r.s.results {
		if res.AssessmentID == id {
			delete(r.s.results, rid)
		}
	}
	delete(r.s.assessments, id)
	return nil
}

// memResults

type memResults struct{ s *memStore }

func (r memResults) ListByAssessment(ctx context.Context, assessmentID int64) ([]models.Result, error) {
	if err := r.s.check("Result.ListByAssessment"); err != nil {
		return nil, err
	}
	var out []models.Result
	for _, res := range r.s.results {
		if res.AssessmentID == assessmentID {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (r memResults) UpdateRollup(ctx context.Context, id int64, total, obtained float64) error {
	if err := r.s.check("Result.UpdateRollup"); err != nil {
		return err
	}
	res := r.s.results[id]
	res.FinalTotalMarks = total
	res.FinalObtainedMarks = obtained
	r.s.results[id] = res
	return nil
}

func (r memResults) Upsert(ctx context.Context, result *models.Result) error {
	if err := r.s.check("Result.Upsert"); err != nil {
		return err
	}
	if existing, ok := r.s.resultFor(result.StudentID, result.AssessmentID); ok {
		result.ID = existing.ID
	} else {
		result.ID = r.s.id()
	}
	r.s.results[result.ID] = *result
	return nil
}

func (r memResults) TypeTotalsForStudent(ctx context.Context, studentID int64, courseIDs []int64) ([]models.AssessmentTypeTotals, error) {
	if err := r.s.check("Result.TypeTotalsForStudent"); err != nil {
		return nil, err
	}
	type key struct {
		course int64
		typ    models.AssessmentType
	}
	wanted := map[int64]bool{}
	for _, id := range courseIDs {
		wanted[id] = true
	}
	agg := map[key]*models.AssessmentTypeTotals{}
	var keys []key
	for _, a := range r.s.assessments {
		if !wanted[a.CourseID] {
			continue
		}
		k := key{a.CourseID, a.Type}
		t, ok := agg[k]
		if !ok {
			t = &models.AssessmentTypeTotals{CourseID: a.CourseID, Type: a.Type}
			agg[k] = t
			keys = append(keys, k)
		}
		t.Assessments++
		t.TotalMarks += a.NormalizedTotalMarks
		if res, ok := r.s.resultFor(studentID, a.ID); ok {
			t.ObtainedMarks += res.FinalObtainedMarks
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].course != keys[j].course {
			return keys[i].course < keys[j].course
		}
		return keys[i].typ < keys[j].typ
	})
	out := make([]models.AssessmentTypeTotals, 0, len(keys))
	for _, k := range keys {
		out = append(out, *agg[k])
	}
	return out, nil
}

// memMarks

type memMarks struct{ s *memStore }

func (r memMarks) TotalsByAssessment(ctx context.Context, assessmentID int64) ([]models.StudentMarkTotals, error) {
	if err := r.s.check("Mark.TotalsByAssessment"); err != nil {
		return nil, err
	}
	byStudent := map[int64]*models.StudentMarkTotals{}
	for _, m := range r.s.marks {
		if r.s.questions[m.QuestionID].AssessmentID != assessmentID {
			continue
		}
		t, ok := byStudent[m.StudentID]
		if !ok {
			t = &models.StudentMarkTotals{StudentID: m.StudentID}
			byStudent[m.StudentID] = t
		}
		t.TotalMarks += m.TotalMarks
		t.ObtainedMarks += m.ObtainedMarks
	}
	out := make([]models.StudentMarkTotals, 0, len(byStudent))
	for _, t := range byStudent {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (r memMarks) Upsert(ctx context.Context, mark *models.Mark) error {
	if err := r.s.check("Mark.Upsert"); err != nil {
		return err
	}
	for id, m := range r.s.marks {
		if m.StudentID == mark.StudentID && m.QuestionID == mark.QuestionID {
			mark.ID = id
			r.s.marks[id] = *mark
			return nil
		}
	}
	mark.ID = r.s.id()
	r.s.marks[mark.ID] = *mark
	return nil
}

// memQuestions

type memQuestions struct{ s *memStore }

func (r memQuestions) ListByAssessment(ctx context.Context, assessmentID int64) ([]models.Question, error) {
	if err := r.s.check("Question.ListByAssessment"); err != nil {
		return nil, err
	}
	var out []models.Question
	for _, q := range r.s.questions {
		if q.AssessmentID == assessmentID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memQuestions) Create(ctx context.Context, q *models.Question) error {
	if err := r.s.check("Question.Create"); err != nil {
		return err
	}
	q.ID = r.s.id()
	r.s.questions[q.ID] = *q
	return nil
}

// memOutcomes

type memOutcomes struct{ s *memStore }

func (r memOutcomes) FindCLO(ctx context.Context, id int64) (*models.CLO, error) {
	if err := r.s.check("Outcome.FindCLO"); err != nil {
		return nil, err
	}
	c, ok := r.s.clos[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r memOutcomes) FindPLO(ctx context.Context, id int64) (*models.PLO, error) {
	if err := r.s.check("Outcome.FindPLO"); err != nil {
		return nil, err
	}
	p, ok := r.s.plos[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (r memOutcomes) ListCLOsByCourse(ctx context.Context, courseID int64) ([]models.CLO, error) {
	if err := r.s.check("Outcome.ListCLOsByCourse"); err != nil {
		return nil, err
	}
	var out []models.CLO
	for _, c := range r.s.clos {
		if c.CourseID == courseID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memOutcomes) ListCLOIDsByPLO(ctx context.Context, ploID int64) ([]int64, error) {
	if err := r.s.check("Outcome.ListCLOIDsByPLO"); err != nil {
		return nil, err
	}
	ids := append([]int64(nil), r.s.mapping[ploID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r memOutcomes) ListPLOIDsByCLO(ctx context.Context, cloIDs []int64) ([]int64, error) {
	if err := r.s.check("Outcome.ListPLOIDsByCLO"); err != nil {
		return nil, err
	}
	wanted := map[int64]bool{}
	for _, id := range cloIDs {
		wanted[id] = true
	}
	var out []int64
	for ploID, clos := range r.s.mapping {
		for _, c := range clos {
			if wanted[c] {
				out = append(out, ploID)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r memOutcomes) SumMarksForCLO(ctx context.Context, cloID, studentID int64, courseID *int64) (models.CLOMarkSums, error) {
	if err := r.s.check("Outcome.SumMarksForCLO"); err != nil {
		return models.CLOMarkSums{}, err
	}
	var sums models.CLOMarkSums
	for _, q := range r.s.questions {
		if q.CLOID == nil || *q.CLOID != cloID {
			continue
		}
		if courseID != nil && r.s.assessments[q.AssessmentID].CourseID != *courseID {
			continue
		}
		sums.Total += q.Marks
		for _, m := range r.s.marks {
			if m.QuestionID == q.ID && m.StudentID == studentID {
				sums.Obtained += m.ObtainedMarks
			}
		}
	}
	return sums, nil
}

func (r memOutcomes) ListUncoveredCLOs(ctx context.Context, courseID int64) ([]models.CLO, error) {
	if err := r.s.check("Outcome.ListUncoveredCLOs"); err != nil {
		return nil, err
	}
	covered := map[int64]bool{}
	for _, q := range r.s.questions {
		if q.CLOID != nil {
			covered[*q.CLOID] = true
		}
	}
	var out []models.CLO
	for _, c := range r.s.clos {
		if c.CourseID == courseID && !covered[c.ID] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
