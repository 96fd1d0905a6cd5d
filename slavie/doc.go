// Package slavie implements a Discord bot for marriages, adoptions and
// family trees, plus a handful of social and moderation commands.
//
// Key components of the package include:
//
//   - Slavie: owns the bot's lifecycle, from startup to graceful shutdown.
//   - Engine: applies the relationship rules (proposals, marriages,
//     adoptions) atomically against the Store.
//   - Store: persists users, relationships, warnings and interaction logs
//     with GORM, on sqlite or postgres.
//   - API: the admin backend for runtime configuration, per-guild command
//     toggles and relationship management.
//   - Notifier: propagates runtime config and toggle changes between
//     instances sharing a postgres database.
//
// Interactions arrive through the Discord gateway or, optionally, an
// HTTP webhook server. Either way they're handled by the same
// [InteractionHandler] flow, which logs the interaction, checks command
// toggles and dispatches to the command or button handler.
package slavie
