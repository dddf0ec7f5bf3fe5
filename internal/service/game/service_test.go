package game

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/alert"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/archive"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/msgcat"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/platform"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/store"
)

type fakeEngine struct {
	replies []string
	err     error
	calls   [][]string
}

func (f *fakeEngine) BestMove(_ context.Context, history []string, _ time.Duration) (string, error) {
	f.calls = append(f.calls, append([]string(nil), history...))
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	mv := f.replies[0]
	f.replies = f.replies[1:]
	return mv, nil
}

type fakeAlerter struct {
	reports []alert.Report
}

func (f *fakeAlerter) Alert(_ context.Context, r alert.Report) error {
	f.reports = append(f.reports, r)
	return nil
}

type harness struct {
	svc     *Service
	engine  *fakeEngine
	alerter *fakeAlerter
	archive *archive.Memory
}

func newHarness(t *testing.T, replies ...string) *harness {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	h := &harness{
		engine:  &fakeEngine{replies: replies},
		alerter: &fakeAlerter{},
		archive: archive.NewMemory(),
	}
	h.svc, err = NewService(h.engine, cat, h.alerter, h.archive, Config{ThinkTime: time.Second, ChunkLimit: 240}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return h
}

func (h *harness) handle(t *testing.T, sessions *store.Sessions, author, text string) []Post {
	t.Helper()
	posts, err := h.svc.Handle(context.Background(), platform.Mention{ID: 100, Author: author, Text: text}, sessions)
	if err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
	return posts
}

func historyOf(t *testing.T, sessions *store.Sessions, username string) []string {
	t.Helper()
	sess, ok := sessions.Find(username)
	if !ok {
		t.Fatalf("no session for %s", username)
	}
	return sess.History
}

func texts(posts []Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Text
	}
	return out
}

func TestStartWithMoveCreatesSession(t *testing.T) {
	h := newHarness(t, "e5")
	sessions := store.NewSessions()

	posts := h.handle(t, sessions, "amy", "@bot #startgame amy captures e4")

	if got := historyOf(t, sessions, "amy"); !reflect.DeepEqual(got, []string{"e4", "e5"}) {
		t.Fatalf("history = %v", got)
	}
	if len(posts) != 1 || posts[0].Text != "e5" || posts[0].FEN == "" {
		t.Fatalf("posts = %+v", posts)
	}
	if len(h.engine.calls) != 1 || !reflect.DeepEqual(h.engine.calls[0], []string{"e4"}) {
		t.Fatalf("engine calls = %v", h.engine.calls)
	}
}

func TestContinueAppendsBothMoves(t *testing.T) {
	h := newHarness(t, "Nc6")
	sessions := store.NewSessions(store.Session{Username: "Amy", History: []string{"e4", "e5"}})

	posts := h.handle(t, sessions, "amy", "@bot amy captures Nf3")

	if got := historyOf(t, sessions, "amy"); !reflect.DeepEqual(got, []string{"e4", "e5", "Nf3", "Nc6"}) {
		t.Fatalf("history = %v", got)
	}
	if sess, _ := sessions.Find("AMY"); sess.Username != "Amy" {
		t.Fatalf("stored username casing changed to %q", sess.Username)
	}
	if len(posts) != 1 || posts[0].Text != "Nc6" {
		t.Fatalf("posts = %v", texts(posts))
	}
	wantFEN := "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"
	if posts[0].FEN != wantFEN {
		t.Fatalf("fen = %q", posts[0].FEN)
	}
}

func TestResignRemovesSessionAndSkipsMove(t *testing.T) {
	h := newHarness(t, "Nc6")
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5"}})

	posts := h.handle(t, sessions, "amy", "@bot #resign amy captures Nf3")

	if _, ok := sessions.Find("amy"); ok {
		t.Fatal("session still present after resign")
	}
	if len(h.engine.calls) != 0 {
		t.Fatalf("engine called on resign: %v", h.engine.calls)
	}
	want := []string{
		"You made me work hard for that. Good game!",
		"Use this link and the following pgn to create a gif of your game! https://www.chess.com/gifs",
		"e4 e5 ",
	}
	if got := texts(posts); !reflect.DeepEqual(got, want) {
		t.Fatalf("posts = %q", got)
	}
	games, _ := h.archive.Recent(context.Background(), "amy", 0)
	if len(games) != 1 || games[0].Method != archive.MethodResignation || games[0].Result != "0-1" {
		t.Fatalf("archive = %+v", games)
	}
}

func TestResignWithoutSessionOnlyReplies(t *testing.T) {
	h := newHarness(t)
	sessions := store.NewSessions()
	posts := h.handle(t, sessions, "amy", "#resign")
	if len(posts) != 1 || sessions.Len() != 0 {
		t.Fatalf("posts = %v, sessions = %d", texts(posts), sessions.Len())
	}
}

func TestInvalidMoveKeepsHistory(t *testing.T) {
	h := newHarness(t, "Nc6")
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5"}})

	posts := h.handle(t, sessions, "amy", "@bot amy captures Nxe5")

	if got := historyOf(t, sessions, "amy"); !reflect.DeepEqual(got, []string{"e4", "e5"}) {
		t.Fatalf("history = %v", got)
	}
	if len(posts) != 1 || !strings.HasPrefix(posts[0].Text, "That move is invalid.") || posts[0].FEN == "" {
		t.Fatalf("posts = %+v", posts)
	}
	if len(h.engine.calls) != 0 {
		t.Fatal("engine called for invalid move")
	}
}

func TestAlternateNotationIsRejected(t *testing.T) {
	h := newHarness(t, "Nc6")
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5"}})

	h.handle(t, sessions, "amy", "@bot amy captures Ng1f3")

	if got := historyOf(t, sessions, "amy"); len(got) != 2 {
		t.Fatalf("history = %v", got)
	}
}

func TestUserCheckmateEndsGame(t *testing.T) {
	h := newHarness(t)
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"f3", "e5", "g4"}})

	posts := h.handle(t, sessions, "amy", "@bot amy captures Qh4#")

	if _, ok := sessions.Find("amy"); ok {
		t.Fatal("session kept after checkmate")
	}
	if len(h.engine.calls) != 0 {
		t.Fatal("engine asked for a move after mate")
	}
	got := texts(posts)
	if len(got) != 3 || got[0] != "You mated me! Congratulations!" || got[2] != "f3 e5 g4 Qh4# " {
		t.Fatalf("posts = %q", got)
	}
	if posts[0].FEN == "" {
		t.Fatal("mate reply has no board")
	}
	games, _ := h.archive.Recent(context.Background(), "amy", 0)
	if len(games) != 1 || games[0].Result != "0-1" || games[0].UserColor != archive.ColorBlack {
		t.Fatalf("archive = %+v", games)
	}
}

func TestBotCheckmateEndsGame(t *testing.T) {
	h := newHarness(t, "Qxf7#")
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5", "Qh5", "Nc6", "Bc4"}})

	posts := h.handle(t, sessions, "amy", "@bot amy captures Nf6")

	if _, ok := sessions.Find("amy"); ok {
		t.Fatal("session kept after checkmate")
	}
	got := texts(posts)
	if len(got) != 3 || got[0] != "Qxf7# Checkmate!" || got[2] != "e4 e5 Qh5 Nc6 Bc4 Nf6 Qxf7# " {
		t.Fatalf("posts = %q", got)
	}
	games, _ := h.archive.Recent(context.Background(), "amy", 0)
	if len(games) != 1 || games[0].Result != "1-0" || games[0].UserColor != archive.ColorBlack {
		t.Fatalf("archive = %+v", games)
	}
}

func TestGetPGNWithoutSession(t *testing.T) {
	h := newHarness(t)
	sessions := store.NewSessions(store.Session{Username: "bob", History: []string{"d4"}})

	posts := h.handle(t, sessions, "amy", "@bot #getpgn")

	if got := texts(posts); !reflect.DeepEqual(got, []string{"No game found."}) {
		t.Fatalf("posts = %q", got)
	}
	if sessions.Len() != 1 {
		t.Fatalf("store mutated: %d sessions", sessions.Len())
	}
}

func TestGetPGNChunksHistory(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.ChunkLimit = 10
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5", "Nf3", "Nc6", "Bb5", "a6"}})

	posts := h.handle(t, sessions, "amy", "#GetPGN please")

	want := []string{"e4 e5 Nf3 ", "Nc6 Bb5 ", "a6 "}
	if got := texts(posts); !reflect.DeepEqual(got, want) {
		t.Fatalf("posts = %q", got)
	}
}

func TestGetPGNWithEmptyStoredGame(t *testing.T) {
	h := newHarness(t)
	sessions, _, _ := store.ParseLines([]string{"alice,"})

	posts := h.handle(t, sessions, "alice", "@bot #getpgn")

	want := []string{"No moves have been played in your game yet."}
	if got := texts(posts); !reflect.DeepEqual(got, want) {
		t.Fatalf("posts = %q", got)
	}
	if _, ok := sessions.Find("alice"); !ok {
		t.Fatal("session removed")
	}
}

func TestNoSessionWithoutStart(t *testing.T) {
	h := newHarness(t)
	sessions := store.NewSessions()
	posts := h.handle(t, sessions, "amy", "@bot amy captures e4")
	if got := texts(posts); !reflect.DeepEqual(got, []string{"Include #startgame if you would like to start a game."}) {
		t.Fatalf("posts = %q", got)
	}
	if sessions.Len() != 0 || len(h.engine.calls) != 0 {
		t.Fatal("state changed without #startgame")
	}
}

func TestStartWithoutMoveLetsEngineOpen(t *testing.T) {
	h := newHarness(t, "d4")
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5"}})

	posts := h.handle(t, sessions, "amy", "@bot #startgame")

	if got := historyOf(t, sessions, "amy"); !reflect.DeepEqual(got, []string{"d4"}) {
		t.Fatalf("history = %v", got)
	}
	if len(h.engine.calls) != 1 || len(h.engine.calls[0]) != 0 {
		t.Fatalf("engine calls = %v", h.engine.calls)
	}
	if len(posts) != 1 || posts[0].Text != "d4" {
		t.Fatalf("posts = %q", texts(posts))
	}
}

func TestStartWithInvalidMoveLeavesNoSession(t *testing.T) {
	h := newHarness(t)
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5"}})

	posts := h.handle(t, sessions, "amy", "@bot #startgame amy captures e5")

	if _, ok := sessions.Find("amy"); ok {
		t.Fatal("empty session kept")
	}
	if len(posts) != 1 || !strings.HasPrefix(posts[0].Text, "That move is invalid.") {
		t.Fatalf("posts = %q", texts(posts))
	}
}

func TestContinueWithoutMove(t *testing.T) {
	h := newHarness(t)
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5"}})

	posts := h.handle(t, sessions, "amy", "@bot hello #chess")

	if len(posts) != 1 || posts[0].Text != "You need to make a move." || posts[0].FEN == "" {
		t.Fatalf("posts = %+v", posts)
	}
	if got := historyOf(t, sessions, "amy"); len(got) != 2 {
		t.Fatalf("history = %v", got)
	}
}

func TestEngineFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.engine.err = chess.ErrEngineUnavailable
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5"}})

	posts := h.handle(t, sessions, "amy", "@bot amy captures Nf3")

	if got := historyOf(t, sessions, "amy"); !reflect.DeepEqual(got, []string{"e4", "e5"}) {
		t.Fatalf("history = %v", got)
	}
	if len(posts) != 1 || !strings.HasPrefix(posts[0].Text, "I could not come up with a move") {
		t.Fatalf("posts = %q", texts(posts))
	}
	wantFEN := "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2"
	if got := posts[0].FEN; strings.Fields(got)[0] != strings.Fields(wantFEN)[0] {
		t.Fatalf("fen = %q", got)
	}
}

func TestEngineIllegalReplyKeepsSession(t *testing.T) {
	h := newHarness(t, "O-O")
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e5"}})

	h.handle(t, sessions, "amy", "@bot amy captures Nf3")

	if got := historyOf(t, sessions, "amy"); len(got) != 2 {
		t.Fatalf("history = %v", got)
	}
}

func TestBrokenHistoryIsReportedAndKept(t *testing.T) {
	h := newHarness(t, "Nc6")
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4", "e4"}})

	for _, text := range []string{"@bot amy captures Nf3", "#possiblemoves"} {
		posts := h.handle(t, sessions, "amy", text)
		if len(posts) != 1 || !strings.Contains(posts[0].Text, "could not be loaded") {
			t.Fatalf("%q: posts = %q", text, texts(posts))
		}
	}
	if got := historyOf(t, sessions, "amy"); !reflect.DeepEqual(got, []string{"e4", "e4"}) {
		t.Fatalf("history = %v", got)
	}
}

func TestErrorReportAlertsOnly(t *testing.T) {
	h := newHarness(t)
	sessions := store.NewSessions(store.Session{Username: "amy", History: []string{"e4"}})

	posts, err := h.svc.Handle(context.Background(),
		platform.Mention{ID: 77, Author: "amy", Text: "#error the board is wrong #possiblemoves"}, sessions)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("posts = %q", texts(posts))
	}
	want := []alert.Report{{ID: 77, Author: "amy", Text: "#error the board is wrong #possiblemoves"}}
	if !reflect.DeepEqual(h.alerter.reports, want) {
		t.Fatalf("reports = %+v", h.alerter.reports)
	}
	if got := historyOf(t, sessions, "amy"); len(got) != 1 {
		t.Fatalf("history = %v", got)
	}
}

func TestPossibleMovesFreshPosition(t *testing.T) {
	h := newHarness(t)
	sessions := store.NewSessions()

	posts := h.handle(t, sessions, "amy", "#possiblemoves")

	if len(posts) != 1 {
		t.Fatalf("posts = %q", texts(posts))
	}
	prefix := "Here are all of the valid moves in this position: "
	if !strings.HasPrefix(posts[0].Text, prefix) {
		t.Fatalf("text = %q", posts[0].Text)
	}
	if moves := strings.Fields(strings.TrimPrefix(posts[0].Text, prefix)); len(moves) != 20 {
		t.Fatalf("got %d moves: %v", len(moves), moves)
	}
	if sessions.Len() != 0 {
		t.Fatal("possiblemoves created a session")
	}
}

func TestPossibleMovesFirstPostFitsLimit(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.ChunkLimit = 80
	sessions := store.NewSessions()

	posts := h.handle(t, sessions, "amy", "#possiblemoves")

	if len(posts) < 2 {
		t.Fatalf("expected the moves to spill over, got %q", texts(posts))
	}
	prefix := "Here are all of the valid moves in this position: "
	if !strings.HasPrefix(posts[0].Text, prefix) {
		t.Fatalf("text = %q", posts[0].Text)
	}
	var moves []string
	for i, p := range posts {
		if n := len(platform.Address("amy", p.Text)); n > 80 {
			t.Fatalf("post %d is %d chars: %q", i, n, p.Text)
		}
		moves = append(moves, strings.Fields(strings.TrimPrefix(p.Text, prefix))...)
	}
	if len(moves) != 20 {
		t.Fatalf("got %d moves: %v", len(moves), moves)
	}
	if posts[0].FEN == "" {
		t.Fatal("first post has no board")
	}
}

func TestClassifyPriority(t *testing.T) {
	cases := []struct {
		text       string
		hasSession bool
		want       Command
	}{
		{"#resign #error #startgame", true, CommandResign},
		{"#ERROR #possiblemoves", false, CommandErrorReport},
		{"#possiblemoves #getpgn", false, CommandListMoves},
		{"#getpgn #startgame", true, CommandShowHistory},
		{"captures e4", false, CommandNoSession},
		{"#StartGame captures e4", false, CommandStart},
		{"#startgame", true, CommandStart},
		{"captures e4", true, CommandContinue},
	}
	for _, tc := range cases {
		if got := Classify(tc.text, tc.hasSession); got != tc.want {
			t.Errorf("Classify(%q, %v) = %v, want %v", tc.text, tc.hasSession, got, tc.want)
		}
	}
}

func TestExtractMove(t *testing.T) {
	cases := []struct {
		text, want string
	}{
		{"@bot amy captures e4", "e4"},
		{"@bot amy captures  Nf3  #chess", "Nf3"},
		{"@bot amy captures Qh4# #startgame", "Qh4#"},
		{"@bot amy captures Qxf7#", "Qxf7#"},
		{"@bot #startgame", ""},
		{"@bot amy Captures e4", ""},
		{"@bot captures #startgame", ""},
	}
	for _, tc := range cases {
		if got := ExtractMove(tc.text, "captures"); got != tc.want {
			t.Errorf("ExtractMove(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
