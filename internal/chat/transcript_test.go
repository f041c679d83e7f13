package chat

import (
	"fmt"
	"path/filepath"
	"time"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/kassir/internal/store"
)

var _ = ginkgo.Describe("Transcript", func() {
	var (
		now        time.Time
		transcript *Transcript
	)

	message := func(id string, role Role, content string) Message {
		return Message{ID: id, Role: role, Content: content, Timestamp: now}
	}

	ginkgo.BeforeEach(func() {
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		transcript = NewTranscript(WelcomeMessage(true, now))
	})

	ginkgo.It("should always lead with the welcome message", func() {
		transcript.Append(message("a", RoleUser, "привет"))
		messages := transcript.Messages()
		Expect(messages).To(HaveLen(2))
		Expect(messages[0].ID).To(Equal(WelcomeID))
		Expect(transcript.Persisted()).To(HaveLen(1))
	})

	ginkgo.It("should keep the most recent messages", func() {
		for i := 0; i < MaxPersisted+5; i++ {
			transcript.Append(message(fmt.Sprintf("m%d", i), RoleUser, "x"))
		}
		Expect(transcript.Len()).To(Equal(MaxPersisted))
		Expect(transcript.Persisted()[0].ID).To(Equal("m5"))
	})

	ginkgo.It("should remove messages by role", func() {
		transcript.Append(message("u1", RoleUser, "чек"))
		transcript.Append(message("p1", RolePreview, "проверь"))
		transcript.Append(message("a1", RoleAgent, "ответ"))
		transcript.Append(message("p2", RolePreview, "проверь"))

		Expect(transcript.RemoveRole(RolePreview)).To(Equal([]string{"p1", "p2"}))
		Expect(transcript.Len()).To(Equal(2))
		Expect(transcript.RemoveRole(RolePreview)).To(BeEmpty())
	})

	ginkgo.It("should find the prompt a reply answered", func() {
		transcript.Append(message("u1", RoleUser, "первый"))
		transcript.Append(message("a1", RoleAgent, "ответ 1"))
		transcript.Append(message("u2", RoleUser, "второй"))
		transcript.Append(message("a2", RoleAgent, "ответ 2"))

		Expect(transcript.PromptFor("a1")).To(Equal("первый"))
		Expect(transcript.PromptFor("a2")).To(Equal("второй"))
		Expect(transcript.PromptFor("missing")).To(BeEmpty())
	})

	ginkgo.It("should find the welcome message", func() {
		m, ok := transcript.Find(WelcomeID)
		Expect(ok).To(BeTrue())
		Expect(m.Content).To(Equal(textWelcomeConfigured))
		_, ok = transcript.Find("nope")
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("should clear all but the welcome message", func() {
		transcript.Append(message("u1", RoleUser, "чек"))
		transcript.Clear()
		Expect(transcript.Messages()).To(HaveLen(1))
	})

	ginkgo.Describe("LoadTranscript", func() {
		var kv *store.BoltKV

		ginkgo.BeforeEach(func() {
			var err error
			kv, err = store.NewBoltKV(filepath.Join(ginkgo.GinkgoT().TempDir(), "t.db"))
			Expect(err).NotTo(HaveOccurred())
		})

		ginkgo.AfterEach(func() {
			kv.Close()
		})

		ginkgo.It("should skip a stored welcome message", func() {
			store.Save(kv, "k", []Message{WelcomeMessage(false, now), message("u1", RoleUser, "чек")})
			loaded := LoadTranscript(kv, "k", WelcomeMessage(true, now))
			Expect(loaded.Len()).To(Equal(1))
			Expect(loaded.Messages()[0].Content).To(Equal(textWelcomeConfigured))
		})

		ginkgo.It("should fall back to the welcome message on corrupted data", func() {
			Expect(kv.Put("k", []byte("{not json"))).To(Succeed())
			loaded := LoadTranscript(kv, "k", WelcomeMessage(true, now))
			Expect(loaded.Messages()).To(HaveLen(1))

			_, err := kv.Get("k")
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})
})

var _ = ginkgo.Describe("DetectIntent", func() {
	ginkgo.DescribeTable("recognising commands",
		func(input string, expected Intent) {
			Expect(DetectIntent(input)).To(Equal(expected))
		},
		ginkgo.Entry("exact phrase", "очисти историю", IntentClearHistory),
		ginkgo.Entry("mixed case and spacing", "  Очистить   ИСТОРИЮ ", IntentClearHistory),
		ginkgo.Entry("single word", "почисти", IntentClearHistory),
		ginkgo.Entry("english", "Clear History", IntentClearHistory),
		ginkgo.Entry("phrase inside a sentence", "пожалуйста очисти историю чата", IntentClearHistory),
		ginkgo.Entry("single word inside a sentence", "очисти счет за кофе", IntentNone),
		ginkgo.Entry("receipt request", "консультация 5000 рублей", IntentNone),
		ginkgo.Entry("empty", "   ", IntentNone),
	)
})

var _ = ginkgo.Describe("State", func() {
	ginkgo.DescribeTable("transitions",
		func(from, to State, allowed bool) {
			Expect(CanTransition(from, to)).To(Equal(allowed))
		},
		ginkgo.Entry("request a preview", StateIdle, StateAwaitingPreview, true),
		ginkgo.Entry("preview arrives", StateAwaitingPreview, StatePreviewReady, true),
		ginkgo.Entry("preview fails", StateAwaitingPreview, StateIdle, true),
		ginkgo.Entry("confirm", StatePreviewReady, StateConfirming, true),
		ginkgo.Entry("cancel", StatePreviewReady, StateIdle, true),
		ginkgo.Entry("settle", StateConfirming, StateSettledSuccess, true),
		ginkgo.Entry("retry after transport failure", StateConfirming, StatePreviewReady, true),
		ginkgo.Entry("start over", StateSettledFailure, StateIdle, true),
		ginkgo.Entry("skip the preview", StateIdle, StateConfirming, false),
		ginkgo.Entry("confirm twice", StateSettledSuccess, StateConfirming, false),
	)

	ginkgo.It("should mark outstanding requests", func() {
		Expect(StateAwaitingPreview.InFlight()).To(BeTrue())
		Expect(StateConfirming.InFlight()).To(BeTrue())
		Expect(StatePreviewReady.InFlight()).To(BeFalse())
	})

	ginkgo.It("should panic on an invalid move", func() {
		s := &session{state: StateIdle}
		Expect(func() { s.moveTo(StateSettledSuccess) }).To(Panic())
	})
})
