// Package chitchat is the group-chat companion feature set: canned keyword
// replies with per-user counters, encouragement quotes, and the daily random
// "好棒指數" score. It is consulted only after the command interpreter
// produced no reply.
package chitchat

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"ledgerbot/internal/storage"
)

// keywordReplies maps an exact trimmed message to its canned reply.
var keywordReplies = map[string]string{
	"不好":  "你很好!!你很好!!你很好!!",
	"睏了":  "去睡啦不要撐",
	"吃飽沒": "還沒你請嗎？",
	"不要":  "偏要 (*´∀`)~♥",
	"還好":  "真的還好嗎？還是說你嘴硬（๑•́‧̫•̀๑）",
	"普通":  "平凡也是一種幸福啦（๑•̀ㅁ•́๑）✧",
	"我不好": "哪裡不好？我看你很讚啊 💪",
	"好累":  "快去休息！我在這裡等你回來٩(๑•̀ω•́๑)۶",
	"廢物":  "你不是廢物，是超級廢物戰士（誤）其實你很棒啦（ﾉ>ω<）ﾉ",
}

var quotes = []string{
	"你已經比昨天更棒了耶 ✨",
	"不要小看現在努力的你，那是未來爆閃的伏筆！（•̀ᴗ•́）و",
	"今天也是很讚的一天（因為有你在啊！）(๑´ㅂ`๑)",
	"你撐下來的每一秒，都是超帥氣的成就💪",
	"就算世界毀滅，你也記得吃飯睡覺喝水喔 ✧٩(ˊωˋ*)و✧",
	"你不是一顆螺絲，你是整個機器運轉的靈魂！٩(｡•́‿•̀｡)۶",
	"今天的你，光是站著就有氣場 ✨",
	"失敗了沒關係，我們下次可以一起怪天氣 ╮(╯∀╰)╭",
	"你是那種，即使偷偷 emo 還是會照亮別人的可愛存在 ✿",
	"今天也要記得笑一下，雖然笑不出來也沒關係，我幫你笑 (๑¯∀¯๑)",
}

// scoreComments holds the tiered comment pools for the 好棒指數 score; tiers
// are checked top down against the score's lower bound.
var scoreComments = []struct {
	min      int
	comments []string
}{
	{96, []string{
		"這不是好棒，是傳奇了 ✨",
		"你今天可以寫進教科書的那種棒 👑",
		"氣場強到貓都會自動過來蹭你 🐱",
	}},
	{80, []string{
		"今天的你，光是站著就有氣場 ✨",
		"閃閃發亮欸～要不要戴墨鏡面對你 🕶️",
		"是穩定輸出的優質人類，給你五顆星 🌟",
	}},
	{60, []string{
		"今天的你，是那種會被偷偷讚賞的類型 🫶",
		"穩穩地前進，腳步不大但不會停 ✨",
		"是讓人想輕聲說『你好棒』的那種棒",
	}},
	{40, []string{
		"可能沒開全力，但還是有默默發光 ✨",
		"今天可能是在蓄能，為明天大爆發做準備 🔋",
		"一步一步來，你的節奏剛剛好 🐢",
	}},
	{20, []string{
		"今天是成長中版本的你，最值得鼓掌 👏",
		"有時候輕輕走，也是一種力量 🕊️",
		"再撐一下，棒棒力正在充電中 🔋",
	}},
	{0, []string{
		"今天的你像被雲蓋住的太陽，但光還在 ☁️☀️",
		"你只是剛好遇到需要充電的一天，不用急 🧃",
		"有時候發呆，也是一種自我照顧 🛋️",
	}},
}

// Service owns the chitchat state: the counter store and its own random
// source (no package-level globals).
type Service struct {
	store *storage.Store
	rng   *rand.Rand
}

func New(store *storage.Store, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Service{store: store, rng: rng}
}

// HandleMessage answers group-chat chitchat. Direct conversations and
// unmatched input return no reply. Counter-store failures degrade to the
// plain canned reply rather than failing the message.
func (s *Service) HandleMessage(ctx context.Context, userID, text, conversationKind string) (string, bool) {
	if conversationKind != "group" || userID == "" {
		return "", false
	}
	text = strings.TrimSpace(text)

	if canned, ok := keywordReplies[text]; ok {
		count, err := s.store.IncrementKeywordCount(ctx, userID, text)
		if err != nil {
			slog.ErrorContext(ctx, "keyword count increment failed",
				"user_id", userID, "keyword", text, "error", err)
			return canned, true
		}
		return fmt.Sprintf("%s（你說過「%s」%d 次）", canned, text, count), true
	}

	if keyword, ok := strings.CutPrefix(text, "查詢 "); ok {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			return "", false
		}
		count, err := s.store.GetKeywordCount(ctx, userID, keyword)
		if err != nil {
			slog.ErrorContext(ctx, "keyword count lookup failed",
				"user_id", userID, "keyword", keyword, "error", err)
			return "", false
		}
		return fmt.Sprintf("你目前說「%s」共 %d 次。", keyword, count), true
	}

	switch text {
	case "我今天好棒嗎", "今日好棒指數":
		score := s.rng.Intn(100) + 1
		return fmt.Sprintf("🎯 今日好棒指數為：%d%%\n%s", score, commentFor(s.rng, score)), true
	case "金句", "來一句", "鼓勵我", "可愛語錄":
		return quotes[s.rng.Intn(len(quotes))], true
	}

	return "", false
}

func commentFor(rng *rand.Rand, score int) string {
	for _, tier := range scoreComments {
		if score >= tier.min {
			return tier.comments[rng.Intn(len(tier.comments))]
		}
	}
	return scoreComments[len(scoreComments)-1].comments[0]
}
