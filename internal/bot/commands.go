package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ledgerbot/internal/core"
)

const replyStorageFailure = "⚠️ 系統出了點問題，請稍後再試"

const helpText = `📒 記帳小幫手指令
記帳 金額 類別 [備註]
查 YYYY-MM-DD
本週合計 / 本月合計
類別統計 [本週|本月|YYYY-MM]
刪除 編號 / 刪除最後
修改 編號 欄位 值（欄位：金額、類別、備註）
提醒開 / 提醒關`

// categoryStatsLimit caps report rows; the grand total still covers all rows.
const categoryStatsLimit = 20

func (s *Service) tryHelp(_ context.Context, _, text string) (string, bool, error) {
	switch text {
	case "help", "說明", "指令", "功能":
		return helpText, true, nil
	}
	return "", false, nil
}

// tryRecord handles 記帳 <amount> <category> [memo...]. The memo is the
// remainder of the line verbatim. A malformed amount fails the pattern and
// falls through instead of replying.
func (s *Service) tryRecord(ctx context.Context, userID, text string) (string, bool, error) {
	rest, ok := cutPrefix(text, "記帳")
	if !ok {
		return "", false, nil
	}
	amountTok, rest := nextToken(rest)
	categoryTok, memo := nextToken(rest)
	if amountTok == "" || categoryTok == "" {
		return "", false, nil
	}
	amount, err := core.ParseAmount(amountTok)
	if err != nil {
		return "", false, nil
	}

	rec := core.ExpenseRecord{
		UserID:    userID,
		Amount:    amount,
		Category:  categoryTok,
		Memo:      memo,
		SpentDate: s.clock.Today(),
	}
	id, err := s.store.AddExpense(ctx, rec)
	if err != nil {
		return "", true, err
	}
	rec.ID = id

	s.publishRecorded(ctx, id)

	reply := fmt.Sprintf("✅ 已記帳 #%d\n日期：%s\n金額：%s\n類別：%s\n備註：%s",
		rec.ID, rec.SpentDate, rec.Amount, rec.Category, rec.MemoDisplay())
	return reply, true, nil
}

func (s *Service) tryWeekTotal(ctx context.Context, userID, text string) (string, bool, error) {
	if text != "本週合計" {
		return "", false, nil
	}
	start, end := s.clock.CurrentWeekRange()
	reply, err := s.rangeTotal(ctx, userID, "本週合計", start, end)
	return reply, true, err
}

func (s *Service) tryMonthTotal(ctx context.Context, userID, text string) (string, bool, error) {
	if text != "本月合計" {
		return "", false, nil
	}
	start, end := s.clock.CurrentMonthRange()
	reply, err := s.rangeTotal(ctx, userID, "本月合計", start, end)
	return reply, true, err
}

func (s *Service) rangeTotal(ctx context.Context, userID, title string, start, end core.Date) (string, error) {
	recs, err := s.store.GetExpensesBetween(ctx, userID, start, end)
	if err != nil {
		return "", err
	}
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Amount)
	}
	return fmt.Sprintf("📊 %s（%s ~ %s）\n共 %d 筆，合計 %s",
		title, start, end, len(recs), total.StringFixed(2)), nil
}

// tryQueryDate handles 查 <YYYY-MM-DD>. A malformed date fails the pattern
// and falls through.
func (s *Service) tryQueryDate(ctx context.Context, userID, text string) (string, bool, error) {
	rest, ok := cutPrefix(text, "查")
	if !ok {
		return "", false, nil
	}
	day, err := core.ParseDate(rest)
	if err != nil {
		return "", false, nil
	}

	recs, err := s.store.GetExpensesOn(ctx, userID, day)
	if err != nil {
		return "", true, err
	}
	if len(recs) == 0 {
		return fmt.Sprintf("%s 沒有記帳紀錄", day), true, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s 記帳明細", day)
	total := decimal.Zero
	for _, r := range recs {
		fmt.Fprintf(&b, "\n#%d %s %s %s", r.ID, r.Amount, r.Category, r.MemoDisplay())
		total = total.Add(r.Amount)
	}
	fmt.Fprintf(&b, "\n共 %d 筆，合計 %s", len(recs), total.StringFixed(2))
	return b.String(), true, nil
}

// tryCategoryStats handles 類別統計 [本週|本月|YYYY-MM], defaulting to the
// current month. An unrecognized qualifier is a validation error reply.
func (s *Service) tryCategoryStats(ctx context.Context, userID, text string) (string, bool, error) {
	var qualifier string
	switch {
	case text == "類別統計":
		qualifier = "本月"
	default:
		rest, ok := cutPrefix(text, "類別統計")
		if !ok {
			return "", false, nil
		}
		qualifier = rest
	}

	var (
		start, end core.Date
		err        error
	)
	switch qualifier {
	case "本週":
		start, end = s.clock.CurrentWeekRange()
	case "本月":
		start, end = s.clock.CurrentMonthRange()
	default:
		start, end, err = s.clock.MonthRange(qualifier)
		if err != nil {
			reply := fmt.Sprintf("看不懂的期間「%s」，可用 本週、本月 或 YYYY-MM", qualifier)
			return reply, true, nil
		}
	}

	recs, err := s.store.GetExpensesBetween(ctx, userID, start, end)
	if err != nil {
		return "", true, err
	}
	if len(recs) == 0 {
		return fmt.Sprintf("這段期間（%s ~ %s）沒有記帳紀錄", start, end), true, nil
	}

	totals := aggregateByCategory(recs)

	var b strings.Builder
	fmt.Fprintf(&b, "📈 類別統計（%s ~ %s）", start, end)
	grand := decimal.Zero
	for i, ct := range totals {
		grand = grand.Add(ct.Total)
		if i < categoryStatsLimit {
			fmt.Fprintf(&b, "\n%s：%s（%d 筆）", ct.Category, ct.Total.StringFixed(2), ct.Count)
		}
	}
	fmt.Fprintf(&b, "\n總計 %s", grand.StringFixed(2))
	return b.String(), true, nil
}

// aggregateByCategory partitions records by exact category string equality and
// sorts descending by total. Ties break ascending by category so the output
// is deterministic for a fixed input.
func aggregateByCategory(recs []core.ExpenseRecord) []core.CategoryTotal {
	byCategory := make(map[string]*core.CategoryTotal)
	var order []string
	for _, r := range recs {
		ct, ok := byCategory[r.Category]
		if !ok {
			ct = &core.CategoryTotal{Category: r.Category, Total: decimal.Zero}
			byCategory[r.Category] = ct
			order = append(order, r.Category)
		}
		ct.Total = ct.Total.Add(r.Amount)
		ct.Count++
	}

	totals := make([]core.CategoryTotal, 0, len(order))
	for _, cat := range order {
		totals = append(totals, *byCategory[cat])
	}
	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].Category < totals[j].Category
	})
	return totals
}

func (s *Service) tryDeleteLast(ctx context.Context, userID, text string) (string, bool, error) {
	if text != "刪除最後" && text != "刪除最後一筆" {
		return "", false, nil
	}
	last, err := s.store.GetMostRecent(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return "目前沒有可刪除的記帳紀錄", true, nil
	}
	if err != nil {
		return "", true, err
	}

	rec, err := s.store.DeleteExpense(ctx, userID, last.ID)
	if errors.Is(err, core.ErrNotFound) {
		// Removed concurrently between the lookup and the delete.
		return "目前沒有可刪除的記帳紀錄", true, nil
	}
	if err != nil {
		return "", true, err
	}
	return deletedReply(rec), true, nil
}

func (s *Service) tryDelete(ctx context.Context, userID, text string) (string, bool, error) {
	rest, ok := cutPrefix(text, "刪除")
	if !ok {
		return "", false, nil
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id < 0 {
		return "", false, nil
	}

	rec, err := s.store.DeleteExpense(ctx, userID, id)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Sprintf("找不到編號 %d 的記帳紀錄", id), true, nil
	}
	if err != nil {
		return "", true, err
	}
	return deletedReply(rec), true, nil
}

func deletedReply(rec core.ExpenseRecord) string {
	return fmt.Sprintf("🗑 已刪除 #%d\n日期：%s\n金額：%s\n類別：%s\n備註：%s",
		rec.ID, rec.SpentDate, rec.Amount, rec.Category, rec.MemoDisplay())
}

// tryModify handles 修改 <id> <field> <value> [...], fields in pairs, field
// names 金額/類別/備註. Odd counts and unknown fields are format-error
// replies. The confirmation echoes old and new amount and category; a memo
// change is applied but not echoed.
func (s *Service) tryModify(ctx context.Context, userID, text string) (string, bool, error) {
	rest, ok := cutPrefix(text, "修改")
	if !ok {
		return "", false, nil
	}
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return "", false, nil
	}
	id, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil || id < 0 {
		return "", false, nil
	}

	pairs := tokens[1:]
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return "修改格式：修改 編號 欄位 值（欄位與值需成對）", true, nil
	}

	var patch core.ExpensePatch
	for i := 0; i < len(pairs); i += 2 {
		field, value := pairs[i], pairs[i+1]
		switch field {
		case "金額":
			amount, err := core.ParseAmount(value)
			if err != nil {
				return fmt.Sprintf("看不懂的金額「%s」", value), true, nil
			}
			patch.Amount = &amount
		case "類別":
			category := value
			patch.Category = &category
		case "備註":
			memo := value
			patch.Memo = &memo
		default:
			return fmt.Sprintf("看不懂的欄位「%s」，可用 金額、類別、備註", field), true, nil
		}
	}

	old, updated, err := s.store.UpdateExpense(ctx, userID, id, patch)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Sprintf("找不到編號 %d 的記帳紀錄", id), true, nil
	}
	if err != nil {
		return "", true, err
	}

	reply := fmt.Sprintf("✏️ 已修改 #%d\n金額：%s → %s\n類別：%s → %s",
		id, old.Amount, updated.Amount, old.Category, updated.Category)
	return reply, true, nil
}

func (s *Service) tryReminderToggle(ctx context.Context, _, text string) (string, bool, error) {
	var value, reply string
	switch text {
	case "提醒開":
		value, reply = "1", "🔔 已開啟記帳提醒，每天 21:00 檢查"
	case "提醒關":
		value, reply = "0", "🔕 已關閉記帳提醒"
	default:
		return "", false, nil
	}
	if err := s.store.SetSetting(ctx, core.ReminderEnabledKey, value); err != nil {
		return "", true, err
	}
	return reply, true, nil
}

func (s *Service) publishRecorded(ctx context.Context, id int64) {
	if s.events == nil {
		return
	}
	// The mirror is best effort; the worker's pending scan catches anything
	// lost here.
	if err := s.events.PublishExpenseRecorded(ctx, id); err != nil {
		slog.ErrorContext(ctx, "publish expense recorded failed", "id", id, "error", err)
	}
}

// cutPrefix matches "<word>" or "<word> <rest>" and returns the trimmed rest.
// "記帳123" does not match "記帳"; the grammar is space separated.
func cutPrefix(text, word string) (string, bool) {
	if text == word {
		return "", true
	}
	rest, ok := strings.CutPrefix(text, word+" ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// nextToken splits off the first whitespace-delimited token; the remainder
// keeps its internal spacing (memos are verbatim).
func nextToken(s string) (token, rest string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		return s[:i], strings.TrimLeft(s[i:], " \t")
	}
	return s, ""
}
