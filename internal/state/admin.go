package state

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/carta/internal/model"
	"github.com/roach88/carta/internal/pricing"
)

func reduceLogin(prev State, a Action, env Env) (State, error) {
	act := a.(Login)
	user := strings.TrimSpace(act.Username)
	next := prev
	if !act.Granted {
		return record(next, notice(env, model.SeverityError, SectionAuth, "Login",
			"Login failed", fmt.Sprintf("Invalid credentials for user %q", user), "")), nil
	}
	next.Admin.Authenticated = true
	return record(next, notice(env, model.SeveritySuccess, SectionAuth, "Login",
		"Login successful", fmt.Sprintf("User %q signed in to the admin panel", user), "")), nil
}

func reduceLogout(prev State, _ Action, env Env) (State, error) {
	next := prev
	next.Admin.Authenticated = false
	return record(next, notice(env, model.SeverityInfo, SectionAuth, "Logout",
		"Logged out", "Admin session closed", "")), nil
}

func reduceUpdatePrices(prev State, a Action, env Env) (State, error) {
	act := a.(UpdatePrices)
	if !act.Prices.Valid() {
		return prev, invalid(KindUpdatePrices, "prices must be finite and non-negative")
	}
	old := prev.Admin.Prices
	var changes []string
	if old.MoviePrice != act.Prices.MoviePrice {
		changes = append(changes, fmt.Sprintf("movie_price: %d -> %d", old.MoviePrice, act.Prices.MoviePrice))
	}
	if old.SeriesPricePerSeason != act.Prices.SeriesPricePerSeason {
		changes = append(changes, fmt.Sprintf("series_price_per_season: %d -> %d", old.SeriesPricePerSeason, act.Prices.SeriesPricePerSeason))
	}
	if old.NovelPricePerChapter != act.Prices.NovelPricePerChapter {
		changes = append(changes, fmt.Sprintf("novel_price_per_chapter: %d -> %d", old.NovelPricePerChapter, act.Prices.NovelPricePerChapter))
	}
	if old.TransferFeePercent != act.Prices.TransferFeePercent {
		changes = append(changes, fmt.Sprintf("transfer_fee_percent: %g -> %g", old.TransferFeePercent, act.Prices.TransferFeePercent))
	}

	next := prev
	next.Admin.Prices = act.Prices
	next.Admin.LastPriceUpdate = timePtr(env)

	message := "Price list saved without changes"
	if len(changes) > 0 {
		message = fmt.Sprintf("%d price field(s) changed", len(changes))
	}
	return record(next, notice(env, model.SeveritySuccess, SectionPrices, "Update Prices",
		"Prices updated", message, strings.Join(changes, "; "))), nil
}

func reduceAddZone(prev State, a Action, env Env) (State, error) {
	act := a.(AddZone)
	name := strings.TrimSpace(act.Name)
	if name == "" {
		return prev, invalid(KindAddZone, "zone name is required")
	}
	if act.Cost < 0 {
		return prev, invalid(KindAddZone, "zone cost must be non-negative")
	}
	if act.Active && activeNameTaken(prev.Admin.DeliveryZones, name, "") {
		return record(prev, notice(env, model.SeverityWarning, SectionZones, "Add Zone",
			"Zone not added", fmt.Sprintf("An active zone named %q already exists", name), "")), nil
	}

	zone := model.DeliveryZone{
		ID:        env.NewID(),
		Name:      name,
		Cost:      act.Cost,
		Active:    act.Active,
		CreatedAt: env.Now,
		UpdatedAt: env.Now,
	}
	next := prev
	next.Admin.DeliveryZones = append(slices.Clone(prev.Admin.DeliveryZones), zone)
	next.Admin.LastZoneUpdate = timePtr(env)
	return record(next, notice(env, model.SeveritySuccess, SectionZones, "Add Zone",
		"Zone added", fmt.Sprintf("Zone %q added", name), zoneDetails(zone))), nil
}

func reduceUpdateZone(prev State, a Action, env Env) (State, error) {
	act := a.(UpdateZone)
	name := strings.TrimSpace(act.Zone.Name)
	switch {
	case act.Zone.ID == "":
		return prev, invalid(KindUpdateZone, "zone id is required")
	case name == "":
		return prev, invalid(KindUpdateZone, "zone name is required")
	case act.Zone.Cost < 0:
		return prev, invalid(KindUpdateZone, "zone cost must be non-negative")
	}

	i := slices.IndexFunc(prev.Admin.DeliveryZones, func(z model.DeliveryZone) bool { return z.ID == act.Zone.ID })
	if i < 0 {
		return record(prev, notice(env, model.SeverityWarning, SectionZones, "Update Zone",
			"Zone not found", fmt.Sprintf("No zone with id %q", act.Zone.ID), "")), nil
	}
	if act.Zone.Active && activeNameTaken(prev.Admin.DeliveryZones, name, act.Zone.ID) {
		return record(prev, notice(env, model.SeverityWarning, SectionZones, "Update Zone",
			"Zone not updated", fmt.Sprintf("An active zone named %q already exists", name), "")), nil
	}

	old := prev.Admin.DeliveryZones[i]
	updated := old
	updated.Name = name
	updated.Cost = act.Zone.Cost
	updated.Active = act.Zone.Active
	updated.UpdatedAt = env.Now

	var changes []string
	if old.Name != updated.Name {
		changes = append(changes, fmt.Sprintf("name: %q -> %q", old.Name, updated.Name))
	}
	if old.Cost != updated.Cost {
		changes = append(changes, fmt.Sprintf("cost: %d -> %d", old.Cost, updated.Cost))
	}
	if old.Active != updated.Active {
		changes = append(changes, fmt.Sprintf("active: %t -> %t", old.Active, updated.Active))
	}

	next := prev
	next.Admin.DeliveryZones = slices.Clone(prev.Admin.DeliveryZones)
	next.Admin.DeliveryZones[i] = updated
	next.Admin.LastZoneUpdate = timePtr(env)
	return record(next, notice(env, model.SeveritySuccess, SectionZones, "Update Zone",
		"Zone updated", fmt.Sprintf("Zone %q updated", name), strings.Join(changes, "; "))), nil
}

func reduceDeleteZone(prev State, a Action, env Env) (State, error) {
	act := a.(DeleteZone)
	if act.ID == "" {
		return prev, invalid(KindDeleteZone, "zone id is required")
	}
	i := slices.IndexFunc(prev.Admin.DeliveryZones, func(z model.DeliveryZone) bool { return z.ID == act.ID })
	if i < 0 {
		return record(prev, notice(env, model.SeverityWarning, SectionZones, "Delete Zone",
			"Zone not found", fmt.Sprintf("No zone with id %q", act.ID), "")), nil
	}
	removed := prev.Admin.DeliveryZones[i]
	next := prev
	next.Admin.DeliveryZones = slices.Delete(slices.Clone(prev.Admin.DeliveryZones), i, i+1)
	next.Admin.LastZoneUpdate = timePtr(env)
	return record(next, notice(env, model.SeverityWarning, SectionZones, "Delete Zone",
		"Zone deleted", fmt.Sprintf("Zone %q deleted", removed.Name), zoneDetails(removed))), nil
}

func reduceAddNovel(prev State, a Action, env Env) (State, error) {
	act := a.(AddNovel)
	novel := model.Novel{
		Title:       strings.TrimSpace(act.Title),
		Genre:       strings.TrimSpace(act.Genre),
		Chapters:    act.Chapters,
		Year:        act.Year,
		Description: strings.TrimSpace(act.Description),
		Active:      act.Active,
	}
	if err := validNovel(KindAddNovel, novel); err != nil {
		return prev, err
	}
	novel.ID = env.NewID()
	novel.CreatedAt = env.Now
	novel.UpdatedAt = env.Now

	next := prev
	next.Admin.Novels = append(slices.Clone(prev.Admin.Novels), novel)
	next.Admin.LastNovelUpdate = timePtr(env)
	return record(next, notice(env, model.SeveritySuccess, SectionNovels, "Add Novel",
		"Novel added", fmt.Sprintf("Novel %q added", novel.Title), novelDetails(novel, prev.Admin.Prices))), nil
}

func reduceUpdateNovel(prev State, a Action, env Env) (State, error) {
	act := a.(UpdateNovel)
	if act.Novel.ID == "" {
		return prev, invalid(KindUpdateNovel, "novel id is required")
	}
	in := act.Novel
	in.Title = strings.TrimSpace(in.Title)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Description = strings.TrimSpace(in.Description)
	if err := validNovel(KindUpdateNovel, in); err != nil {
		return prev, err
	}

	i := slices.IndexFunc(prev.Admin.Novels, func(n model.Novel) bool { return n.ID == in.ID })
	if i < 0 {
		return record(prev, notice(env, model.SeverityWarning, SectionNovels, "Update Novel",
			"Novel not found", fmt.Sprintf("No novel with id %q", in.ID), "")), nil
	}

	updated := prev.Admin.Novels[i]
	updated.Title = in.Title
	updated.Genre = in.Genre
	updated.Chapters = in.Chapters
	updated.Year = in.Year
	updated.Description = in.Description
	updated.Active = in.Active
	updated.UpdatedAt = env.Now

	next := prev
	next.Admin.Novels = slices.Clone(prev.Admin.Novels)
	next.Admin.Novels[i] = updated
	next.Admin.LastNovelUpdate = timePtr(env)
	return record(next, notice(env, model.SeveritySuccess, SectionNovels, "Update Novel",
		"Novel updated", fmt.Sprintf("Novel %q updated", updated.Title), novelDetails(updated, prev.Admin.Prices))), nil
}

func reduceDeleteNovel(prev State, a Action, env Env) (State, error) {
	act := a.(DeleteNovel)
	if act.ID == "" {
		return prev, invalid(KindDeleteNovel, "novel id is required")
	}
	i := slices.IndexFunc(prev.Admin.Novels, func(n model.Novel) bool { return n.ID == act.ID })
	if i < 0 {
		return record(prev, notice(env, model.SeverityWarning, SectionNovels, "Delete Novel",
			"Novel not found", fmt.Sprintf("No novel with id %q", act.ID), "")), nil
	}
	removed := prev.Admin.Novels[i]
	next := prev
	next.Admin.Novels = slices.Delete(slices.Clone(prev.Admin.Novels), i, i+1)
	next.Admin.LastNovelUpdate = timePtr(env)
	return record(next, notice(env, model.SeverityWarning, SectionNovels, "Delete Novel",
		"Novel deleted", fmt.Sprintf("Novel %q deleted", removed.Title), "")), nil
}

func reduceAddNotification(prev State, a Action, env Env) (State, error) {
	act := a.(AddNotification)
	if !act.Severity.Valid() {
		return prev, invalid(KindAddNotification, "unknown severity %q", act.Severity)
	}
	if strings.TrimSpace(act.Title) == "" {
		return prev, invalid(KindAddNotification, "title is required")
	}
	return record(prev, notice(env, act.Severity, act.Section, act.Action, act.Title, act.Message, act.Details)), nil
}

func reduceClearNotifications(prev State, _ Action, env Env) (State, error) {
	cleared := len(prev.Admin.Notifications)
	next := prev
	next.Admin.Notifications = prev.Admin.Notifications.Clear(notice(env, model.SeverityInfo,
		SectionNotifications, "Clear Notifications", "Notifications cleared",
		fmt.Sprintf("%d notification(s) removed", cleared), ""))
	return next, nil
}

func reduceSetLastBackup(prev State, a Action, env Env) (State, error) {
	act := a.(SetLastBackup)
	if act.At.IsZero() {
		return prev, invalid(KindSetLastBackup, "backup time is required")
	}
	next := prev
	next.Admin.LastBackup = model.TimePtr(act.At)
	details := fmt.Sprintf("%d zones, %d novels, transfer fee %g%%",
		len(next.Admin.DeliveryZones), len(next.Admin.Novels), next.Admin.Prices.TransferFeePercent)
	return record(next, notice(env, model.SeveritySuccess, SectionBackup, "Export Backup",
		"Backup exported", "System configuration exported", details)), nil
}

func activeNameTaken(zones []model.DeliveryZone, name, exceptID string) bool {
	for _, z := range zones {
		if z.Active && z.ID != exceptID && strings.EqualFold(strings.TrimSpace(z.Name), name) {
			return true
		}
	}
	return false
}

func validNovel(kind Kind, n model.Novel) error {
	switch {
	case n.Title == "":
		return invalid(kind, "novel title is required")
	case n.Chapters <= 0:
		return invalid(kind, "novel chapters must be positive")
	case n.Year < 0:
		return invalid(kind, "novel year must be non-negative")
	}
	return nil
}

func zoneDetails(z model.DeliveryZone) string {
	return fmt.Sprintf("cost: %d; active: %t", z.Cost, z.Active)
}

func novelDetails(n model.Novel, prices model.PriceConfig) string {
	cash := pricing.NovelCost(n, &prices, model.PayCash)
	transfer := pricing.NovelCost(n, &prices, model.PayTransfer)
	return fmt.Sprintf("chapters: %d; cash: %d; transfer: %d", n.Chapters, cash, transfer)
}

func timePtr(env Env) *time.Time {
	t := env.Now
	return &t
}
