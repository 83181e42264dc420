package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/p-n-ai/pai-course/internal/api"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/mastery"
	"github.com/p-n-ai/pai-course/internal/quiz"
	"github.com/p-n-ai/pai-course/internal/remediation"
)

type moneyData struct {
	course.QuizLog
	Goal float64 `json:"goal,omitempty"`
}

type fixture struct {
	handler http.Handler
	mock    *ai.MockProvider
}

func newFixture(t *testing.T, secret string, checks map[string]api.HealthCheck) fixture {
	t.Helper()

	bank, err := quiz.NewBank("money-check", "Money check", 0.5, []quiz.Question{
		quiz.MCQ{
			Base:    quiz.Base{QuestionID: "q1", Text: "Which is a need?", Tags: []string{"budgeting"}},
			Options: []string{"Rent", "Concert"},
			Correct: "Rent",
		},
		quiz.Numeric{
			Base:   quiz.Base{QuestionID: "q2", Text: "Save 5 a week for 2 weeks. Total?", Tags: []string{"saving"}},
			Target: 10,
		},
	})
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}

	seq, err := course.NewSequence(
		course.StepDef{ID: "intro", Kind: course.KindActivity},
		course.StepDef{ID: "check", Kind: course.KindQuiz, QuizID: "money-check"},
		course.StepDef{ID: "wrap", Kind: course.KindReflection},
	)
	if err != nil {
		t.Fatalf("NewSequence() error = %v", err)
	}
	m, err := course.NewModule("money", "Money basics", seq, map[string]course.Activity[moneyData]{
		"wrap": course.ActivityFunc[moneyData](func(d moneyData) any { return d.Goal }),
	})
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}

	agg := mastery.NewAggregator(nil)
	eng, err := course.NewEngine(m, course.Deps{Aggregator: agg, Banks: course.Banks{"money-check": bank}})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	reg := course.NewRegistry()
	if err := reg.Register(eng); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	mock := ai.NewMockProvider("Let's review needs and wants.")
	router := ai.NewRouter()
	router.Register("mock", mock)

	srv, err := api.New(api.Config{
		Registry:    reg,
		Aggregator:  agg,
		Remediation: remediation.NewEngine(remediation.EngineConfig{AIRouter: router, Aggregator: agg}),
		JWTSecret:   secret,
		Checks:      checks,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return fixture{handler: srv.Handler(), mock: mock}
}

func (f fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type quizStateBody struct {
	SessionID string `json:"session_id"`
	Position  int    `json:"position"`
	Total     int    `json:"total"`
	Finished  bool   `json:"finished"`
	Question  *struct {
		ID string `json:"id"`
	} `json:"question"`
}

// finishQuiz walks the money module through its quiz with one wrong answer.
func (f fixture) finishQuiz(t *testing.T, learner string) {
	t.Helper()
	base := "/learners/" + learner + "/modules/money"
	if rec := f.do(t, http.MethodPost, base+"/complete", `{}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("complete intro = %d %s", rec.Code, rec.Body)
	}
	rec := f.do(t, http.MethodPost, base+"/quiz", "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start quiz = %d %s", rec.Code, rec.Body)
	}
	st := decodeBody[quizStateBody](t, rec)
	qs := "/learners/" + learner + "/quiz-sessions/" + st.SessionID
	f.do(t, http.MethodPost, qs+"/answers", `{"question_id":"q1","value":"Concert"}`, "")
	f.do(t, http.MethodPost, qs+"/answers", `{"question_id":"q2","value":"10"}`, "")
	if rec := f.do(t, http.MethodPost, qs+"/finish", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("finish = %d %s", rec.Code, rec.Body)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t, "", map[string]api.HealthCheck{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("connection refused") },
	})

	if rec := f.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rec.Code)
	}
	body := decodeBody[struct {
		Checks map[string]string `json:"checks"`
	}](t, rec)
	if body.Checks["database"] != "ok" || body.Checks["cache"] != "connection refused" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestListModules(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := f.do(t, http.MethodGet, "/modules", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /modules = %d", rec.Code)
	}
	mods := decodeBody[[]course.ModuleInfo](t, rec)
	if len(mods) != 1 || mods[0].ID != "money" || len(mods[0].Steps) != 3 {
		t.Errorf("modules = %+v", mods)
	}
}

func TestModuleNavigation(t *testing.T) {
	f := newFixture(t, "", nil)
	base := "/learners/learner-1/modules/money"

	rec := f.do(t, http.MethodGet, base, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("open = %d %s", rec.Code, rec.Body)
	}
	if v := decodeBody[course.View](t, rec); v.CurrentStep != "intro" || v.LearnerID != "learner-1" {
		t.Errorf("view = %+v", v)
	}

	rec = f.do(t, http.MethodPost, base+"/goto", `{"step":"wrap"}`, "")
	got := decodeBody[struct {
		Moved bool        `json:"moved"`
		View  course.View `json:"view"`
	}](t, rec)
	if got.Moved || got.View.CurrentStep != "intro" {
		t.Errorf("goto locked step = %+v, want no move", got)
	}

	if rec := f.do(t, http.MethodPost, base+"/complete", `{"data":{"goal":50}}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("complete = %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, base+"/goto", `{"step":"intro"}`, ""); !decodeBody[struct {
		Moved bool `json:"moved"`
	}](t, rec).Moved {
		t.Error("goto completed step should move")
	}

	rec = f.do(t, http.MethodPost, base+"/restart", "", "")
	v := decodeBody[course.View](t, rec)
	if v.CurrentStep != "intro" || len(v.CompletedSteps) != 0 {
		t.Errorf("restart view = %+v", v)
	}
	if !bytes.Contains(v.Data, []byte(`"goal":50`)) {
		t.Errorf("restart dropped data: %s", v.Data)
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, "", nil)
	base := "/learners/learner-1/modules/money"

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown module", http.MethodGet, "/learners/learner-1/modules/nope", "", http.StatusNotFound},
		{"unknown step input", http.MethodGet, base + "/steps/nope", "", http.StatusNotFound},
		{"locked step input", http.MethodGet, base + "/steps/wrap", "", http.StatusForbidden},
		{"unknown result key", http.MethodPost, base + "/complete", `{"data":{"gaol":1}}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, base + "/goto", `{"step":`, http.StatusBadRequest},
		{"missing step", http.MethodPost, base + "/goto", `{}`, http.StatusBadRequest},
		{"quiz on activity step", http.MethodPost, base + "/quiz", "", http.StatusConflict},
		{"unknown quiz session", http.MethodGet, "/learners/learner-1/quiz-sessions/nope", "", http.StatusNotFound},
		{"remediation without attempt", http.MethodPost, "/learners/learner-1/remediation", `{"module_id":"money","step":"check"}`, http.StatusNotFound},
		{"remediation bad language", http.MethodPost, "/learners/learner-1/remediation", `{"module_id":"money","step":"check","language":"not a tag"}`, http.StatusBadRequest},
		{"unknown conversation", http.MethodGet, "/learners/learner-1/remediation/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body, "")
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d %s, want %d", tt.method, tt.path, rec.Code, rec.Body, tt.want)
			}
		})
	}
}

func TestQuizFinishIsRecordedOnce(t *testing.T) {
	f := newFixture(t, "", nil)
	base := "/learners/learner-1/modules/money"

	if rec := f.do(t, http.MethodPost, base+"/complete", `{}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("complete intro = %d %s", rec.Code, rec.Body)
	}
	st := decodeBody[quizStateBody](t, f.do(t, http.MethodPost, base+"/quiz", "", ""))
	qs := "/learners/learner-1/quiz-sessions/" + st.SessionID
	if rec := f.do(t, http.MethodPost, qs+"/answers", `{"question_id":"q1","value":"Concert"}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("answer = %d %s", rec.Code, rec.Body)
	}

	const calls = 8
	codes := make(chan int, calls)
	var wg sync.WaitGroup
	for range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- f.do(t, http.MethodPost, qs+"/finish", "", "").Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	if counts[http.StatusOK] != 1 || counts[http.StatusNotFound] != calls-1 {
		t.Errorf("finish status counts = %v, want one 200 and the rest 404", counts)
	}

	m := decodeBody[struct {
		Concepts []mastery.ConceptScore `json:"concepts"`
	}](t, f.do(t, http.MethodGet, "/learners/learner-1/mastery", "", ""))
	var budgeting mastery.ConceptScore
	for _, c := range m.Concepts {
		if c.Concept == "budgeting" {
			budgeting = c
		}
	}
	if budgeting.Attempts != 1 {
		t.Errorf("budgeting = %+v, want one attempt", budgeting)
	}
}

func TestQuizFlow(t *testing.T) {
	f := newFixture(t, "", nil)
	base := "/learners/learner-1/modules/money"

	if rec := f.do(t, http.MethodPost, base+"/complete", `{"data":{"goal":50}}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("complete intro = %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, base+"/complete", `{}`, ""); rec.Code != http.StatusConflict {
		t.Errorf("complete quiz step directly = %d, want 409", rec.Code)
	}

	rec := f.do(t, http.MethodPost, base+"/quiz", "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start quiz = %d %s", rec.Code, rec.Body)
	}
	st := decodeBody[quizStateBody](t, rec)
	if st.SessionID == "" || st.Total != 2 || st.Question == nil || st.Question.ID != "q1" {
		t.Fatalf("quiz state = %+v", st)
	}
	qs := "/learners/learner-1/quiz-sessions/" + st.SessionID

	if rec := f.do(t, http.MethodGet, "/learners/learner-2/quiz-sessions/"+st.SessionID, "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("other learner's session = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, qs+"/answers", `{"question_id":"q1"}`, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("answer without value = %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, qs+"/answers", `{"question_id":"q9","value":"x"}`, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown question = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, qs+"/answers", `{"question_id":"q1","value":"Concert"}`, "")
	ans := decodeBody[struct {
		Correct bool `json:"correct"`
	}](t, rec)
	if rec.Code != http.StatusOK || ans.Correct {
		t.Errorf("wrong answer = %d correct=%v", rec.Code, ans.Correct)
	}

	st = decodeBody[quizStateBody](t, f.do(t, http.MethodPost, qs+"/advance", "", ""))
	if st.Position != 1 || st.Question == nil || st.Question.ID != "q2" {
		t.Errorf("after advance = %+v", st)
	}

	rec = f.do(t, http.MethodPost, qs+"/answers", `{"question_id":"q2","value":"10.0"}`, "")
	if !decodeBody[struct {
		Correct bool `json:"correct"`
	}](t, rec).Correct {
		t.Error("numeric answer within tolerance should be correct")
	}

	rec = f.do(t, http.MethodPost, qs+"/finish", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("finish = %d %s", rec.Code, rec.Body)
	}
	fin := decodeBody[struct {
		Result quiz.Result `json:"result"`
		View   course.View `json:"view"`
	}](t, rec)
	if fin.Result.Score != 1 || fin.Result.Total != 2 || !fin.Result.Passed {
		t.Errorf("result = %+v, want 1/2 passed", fin.Result)
	}
	if fin.View.CurrentStep != "wrap" {
		t.Errorf("current step = %s, want wrap", fin.View.CurrentStep)
	}

	if rec := f.do(t, http.MethodGet, qs, "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("finished session lookup = %d, want 404", rec.Code)
	}

	in := decodeBody[struct {
		Input float64 `json:"input"`
	}](t, f.do(t, http.MethodGet, base+"/steps/wrap", "", ""))
	if in.Input != 50 {
		t.Errorf("wrap input = %v, want 50", in.Input)
	}

	m := decodeBody[struct {
		Concepts []mastery.ConceptScore `json:"concepts"`
		Weakest  []mastery.ConceptScore `json:"weakest"`
	}](t, f.do(t, http.MethodGet, "/learners/learner-1/mastery", "", ""))
	if len(m.Concepts) != 2 || len(m.Weakest) == 0 || m.Weakest[0].Concept != "budgeting" {
		t.Errorf("mastery = %+v", m)
	}
}

func TestRemediationFlow(t *testing.T) {
	f := newFixture(t, "", nil)
	f.finishQuiz(t, "learner-1")

	rec := f.do(t, http.MethodPost, "/learners/learner-1/remediation", `{"module_id":"money","step":"check","language":"ms"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start remediation = %d %s", rec.Code, rec.Body)
	}
	turn := decodeBody[remediation.Turn](t, rec)
	if turn.ConversationID == "" || turn.Reply != "Let's review needs and wants." {
		t.Fatalf("turn = %+v", turn)
	}
	if sys := f.mock.LastRequest().Messages[0].Content; !strings.Contains(sys, "Which is a need?") || !strings.Contains(sys, "Malay") {
		t.Errorf("system prompt missing quiz context: %s", sys)
	}

	conv := "/learners/learner-1/remediation/" + turn.ConversationID
	if rec := f.do(t, http.MethodPost, conv+"/messages", `{"text":"Why is rent a need?"}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("message = %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, conv+"/messages", `{"text":""}`, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("empty message = %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/learners/learner-2/remediation/"+turn.ConversationID, "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("other learner's conversation = %d, want 404", rec.Code)
	}

	got := decodeBody[remediation.Conversation](t, f.do(t, http.MethodGet, conv, "", ""))
	if len(got.Messages) != 4 {
		t.Errorf("messages = %d, want 4", len(got.Messages))
	}

	if rec := f.do(t, http.MethodPost, conv+"/end", "", ""); rec.Code != http.StatusNoContent {
		t.Errorf("end = %d, want 204", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, conv+"/messages", `{"text":"one more"}`, ""); rec.Code != http.StatusConflict {
		t.Errorf("message after end = %d, want 409", rec.Code)
	}
}

func TestReport(t *testing.T) {
	f := newFixture(t, "", nil)
	f.finishQuiz(t, "learner-1")

	rec := f.do(t, http.MethodGet, "/learners/learner-1/report.xlsx", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report = %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("report body is not a zip archive")
	}
}

func TestLearnerAuth(t *testing.T) {
	const secret = "test-secret"
	f := newFixture(t, secret, nil)

	own, err := api.IssueToken(secret, "learner-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	other, _ := api.IssueToken(secret, "learner-2", time.Hour)
	expired, _ := api.IssueToken(secret, "learner-1", -time.Minute)
	forged, _ := api.IssueToken("other-secret", "learner-1", time.Hour)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong key", forged, http.StatusUnauthorized},
		{"other learner", other, http.StatusForbidden},
		{"own token", own, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/learners/learner-1/modules/money", "", tt.token)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if rec := f.do(t, http.MethodGet, "/modules", "", ""); rec.Code != http.StatusOK {
		t.Errorf("module list should not need a token, got %d", rec.Code)
	}
}

func TestRemediationSocket(t *testing.T) {
	f := newFixture(t, "", nil)
	f.finishQuiz(t, "learner-1")
	turn := decodeBody[remediation.Turn](t, f.do(t, http.MethodPost, "/learners/learner-1/remediation", `{"module_id":"money","step":"check"}`, ""))

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/learners/learner-1/remediation/" + turn.ConversationID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, map[string]string{"text": "Explain again?"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got remediation.Turn
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ConversationID != turn.ConversationID || got.Reply == "" {
		t.Errorf("turn = %+v", got)
	}

	if err := wsjson.Write(ctx, conn, map[string]string{"text": ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var failure struct {
		Error string `json:"error"`
	}
	if err := wsjson.Read(ctx, conn, &failure); err != nil {
		t.Fatalf("read: %v", err)
	}
	if failure.Error == "" {
		t.Error("empty text should produce an error frame")
	}
	conn.Close(websocket.StatusNormalClosure, "")

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/learners/learner-1/remediation/nope/ws", nil)
	if err == nil {
		t.Fatal("Dial() on unknown conversation should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown conversation handshake = %v, want 404", resp)
	}
}
