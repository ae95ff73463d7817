package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"
	"gorm.io/gorm"

	"clore-monitor-bot/model"
	"clore-monitor-bot/monitor"
)

// Input states for the text handler.
const (
	StateNone = iota
	StateWaitMinGPU
	StateWaitMaxPrice
	StateWaitEfficiency
)

const checkNowTimeout = 60 * time.Second

type Bot struct {
	B      *telebot.Bot
	DB     *gorm.DB
	Engine *monitor.Engine
	Logger *slog.Logger

	// State management
	states    map[int64]int
	stateLock sync.RWMutex
}

// Keyboards
var (
	// Main Menu
	menuBtnCheck   = telebot.Btn{Text: "🔍 Check servers"}
	menuBtnStart   = telebot.Btn{Text: "▶️ Start monitoring"}
	menuBtnStop    = telebot.Btn{Text: "⏸ Stop monitoring"}
	menuBtnFilters = telebot.Btn{Text: "⚙️ Filters"}
	menuBtnHistory = telebot.Btn{Text: "🕘 History"}
	menuKeyboard   = &telebot.ReplyMarkup{ResizeKeyboard: true}

	// Inline Buttons
	btnPresetMinGPU   = telebot.Btn{Text: "Min. 10 GPU", Unique: "preset_min_gpu"}
	btnPresetMaxPrice = telebot.Btn{Text: "Price < $5", Unique: "preset_max_price"}
	btnSetMinGPU      = telebot.Btn{Text: "✏️ Min GPU", Unique: "set_min_gpu"}
	btnSetMaxPrice    = telebot.Btn{Text: "✏️ Max price", Unique: "set_max_price"}
	btnSetEfficiency  = telebot.Btn{Text: "⚡ Efficiency", Unique: "set_efficiency"}
)

func NewBot(token string, db *gorm.DB, engine *monitor.Engine, logger *slog.Logger) (*Bot, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	bot := &Bot{
		B:      b,
		DB:     db,
		Engine: engine,
		Logger: logger,
		states: make(map[int64]int),
	}

	// Init keyboards
	menuKeyboard.Reply(
		menuKeyboard.Row(menuBtnCheck),
		menuKeyboard.Row(menuBtnStart, menuBtnStop),
		menuKeyboard.Row(menuBtnFilters, menuBtnHistory),
	)

	bot.registerHandlers()
	return bot, nil
}

func (bot *Bot) Start() {
	bot.B.Start()
}

func (bot *Bot) Stop() {
	bot.B.Stop()
}

// Notify delivers an engine alert to the user. Implements
// monitor.Notifier.
func (bot *Bot) Notify(userID int64, text string) error {
	_, err := bot.B.Send(&telebot.User{ID: userID}, text)
	return err
}

func (bot *Bot) registerHandlers() {
	// Commands
	bot.B.Handle("/start", bot.handleStart)
	bot.B.Handle("/filters", bot.handleFilters)
	bot.B.Handle("/check_servers", bot.handleCheckNow)
	bot.B.Handle("/start_check", bot.handleStartCheck)
	bot.B.Handle("/stop_check", bot.handleStopCheck)
	bot.B.Handle("/history", bot.handleHistory)

	// Menu Buttons
	bot.B.Handle(&menuBtnCheck, bot.handleCheckNow)
	bot.B.Handle(&menuBtnStart, bot.handleStartCheck)
	bot.B.Handle(&menuBtnStop, bot.handleStopCheck)
	bot.B.Handle(&menuBtnFilters, bot.handleFilters)
	bot.B.Handle(&menuBtnHistory, bot.handleHistory)

	// Inline Buttons
	bot.B.Handle(&btnPresetMinGPU, bot.handlePresetMinGPU)
	bot.B.Handle(&btnPresetMaxPrice, bot.handlePresetMaxPrice)
	bot.B.Handle(&btnSetMinGPU, bot.handleSetMinGPUBtn)
	bot.B.Handle(&btnSetMaxPrice, bot.handleSetMaxPriceBtn)
	bot.B.Handle(&btnSetEfficiency, bot.handleSetEfficiencyBtn)

	// Generic Text Handler (for threshold inputs)
	bot.B.Handle(telebot.OnText, bot.handleText)
}

// Helper to manage state
func (bot *Bot) setState(userID int64, state int) {
	bot.stateLock.Lock()
	defer bot.stateLock.Unlock()
	bot.states[userID] = state
}

func (bot *Bot) getState(userID int64) int {
	bot.stateLock.RLock()
	defer bot.stateLock.RUnlock()
	return bot.states[userID]
}

// --- Handlers ---

func (bot *Bot) handleStart(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateNone)
	text := "👋 Hi! I monitor Clore GPU rental servers for mining profit.\n\n" +
		"Commands:\n" +
		"/filters — set listing filters\n" +
		"/check_servers — check servers now\n" +
		"/start_check — start auto-check\n" +
		"/stop_check — stop auto-check\n" +
		"/history — recent alerts\n"
	return c.Send(text, menuKeyboard)
}

// ⚙️ Filters
func (bot *Bot) handleFilters(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateNone)
	f := bot.Engine.Filters(c.Sender().ID)

	msg := fmt.Sprintf("⚙️ Current filters:\n"+
		"🖥 Min GPU count: %d\n"+
		"💰 Max price: $%s",
		f.MinGPU, f.MaxPrice.StringFixed(2))

	menu := &telebot.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnPresetMinGPU, btnPresetMaxPrice),
		menu.Row(btnSetMinGPU, btnSetMaxPrice),
		menu.Row(btnSetEfficiency),
	)
	return c.Send(msg, menu)
}

func (bot *Bot) handlePresetMinGPU(c telebot.Context) error {
	bot.Engine.SetFilters(c.Sender().ID, 10, decimal.Zero)
	c.Respond(&telebot.CallbackResponse{Text: "Filters updated"})
	return bot.handleFilters(c)
}

func (bot *Bot) handlePresetMaxPrice(c telebot.Context) error {
	bot.Engine.SetFilters(c.Sender().ID, 0, decimal.NewFromInt(5))
	c.Respond(&telebot.CallbackResponse{Text: "Filters updated"})
	return bot.handleFilters(c)
}

func (bot *Bot) handleSetMinGPUBtn(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateWaitMinGPU)
	return c.Send("Enter the minimum GPU count (e.g. 4):")
}

func (bot *Bot) handleSetMaxPriceBtn(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateWaitMaxPrice)
	return c.Send("Enter the maximum price in USD (e.g. 2.50):")
}

func (bot *Bot) handleSetEfficiencyBtn(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateWaitEfficiency)
	return c.Send("Enter your efficiency coefficient between 0 and 1 (e.g. 0.82):")
}

// ▶️ Start monitoring
func (bot *Bot) handleStartCheck(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateNone)
	if !bot.Engine.Start(c.Sender().ID) {
		return c.Send("⏳ Already checking...")
	}
	return c.Send("✅ Auto-check started!")
}

// ⏸ Stop monitoring
func (bot *Bot) handleStopCheck(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateNone)
	bot.Engine.Stop(c.Sender().ID)
	return c.Send("⏸ Auto-check stopped.")
}

// 🔍 One-shot synchronous check
func (bot *Bot) handleCheckNow(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateNone)
	userID := c.Sender().ID

	msg, _ := bot.B.Send(c.Recipient(), "Checking servers, please wait...")

	ctx, cancel := context.WithTimeout(context.Background(), checkNowTimeout)
	defer cancel()

	pages, err := bot.Engine.CheckNow(ctx, userID)

	if msg != nil {
		bot.B.Delete(msg)
	}

	if err != nil {
		bot.Logger.Warn("check now failed", "user", userID, "err", err)
		return c.Send("❌ No available servers.")
	}
	if len(pages) == 0 {
		return c.Send("❌ No matching servers for your filters.")
	}

	for _, page := range pages {
		if err := c.Send(page); err != nil {
			bot.Logger.Error("failed to send check results", "user", userID, "err", err)
			return c.Send("❌ Could not deliver the results.")
		}
	}
	return nil
}

// 🕘 Alert history
func (bot *Bot) handleHistory(c telebot.Context) error {
	bot.setState(c.Sender().ID, StateNone)

	var alerts []model.Alert
	bot.DB.Where("user_id = ?", c.Sender().ID).Order("id desc").Limit(10).Find(&alerts)

	if len(alerts) == 0 {
		return c.Send("🕘 No alerts yet.")
	}

	msg := "🕘 Last alerts:\n\n"
	for _, a := range alerts {
		msg += fmt.Sprintf("%s — %s x%d, %s, profit $%s (ID %s)\n",
			a.CreatedAt.Format("01-02 15:04"),
			a.GPUModel, a.GPUCount, a.Coin, a.Profit, a.ListingID)
	}
	return c.Send(msg)
}

// Global Text Handler (State Machine)
func (bot *Bot) handleText(c telebot.Context) error {
	userID := c.Sender().ID
	state := bot.getState(userID)

	switch state {
	case StateWaitMinGPU:
		val, err := strconv.Atoi(c.Text())
		if err != nil || val < 1 {
			return c.Send("❌ Invalid input, enter an integer ≥ 1.")
		}
		bot.Engine.SetFilters(userID, val, decimal.Zero)
		bot.setState(userID, StateNone)
		c.Send("✅ Min GPU count updated.")
		return bot.handleFilters(c)

	case StateWaitMaxPrice:
		val, err := decimal.NewFromString(c.Text())
		if err != nil || !val.IsPositive() {
			return c.Send("❌ Invalid input, enter a positive number.")
		}
		bot.Engine.SetFilters(userID, 0, val)
		bot.setState(userID, StateNone)
		c.Send("✅ Max price updated.")
		return bot.handleFilters(c)

	case StateWaitEfficiency:
		val, err := decimal.NewFromString(c.Text())
		if err != nil || !bot.Engine.SetEfficiency(userID, val) {
			return c.Send("❌ Invalid input, enter a number in (0, 1].")
		}
		bot.setState(userID, StateNone)
		return c.Send("✅ Efficiency override updated.")
	}

	return nil
}
