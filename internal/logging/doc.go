// Package logging provides leveled, printf-style logging for streamvio.
//
// Levels, lowest to highest: debug, info, warn, error. The level is read once
// from DEBUG (any truthy value forces debug) or LOG_LEVEL, and can be changed
// at runtime with SetLevel.
//
// Long-lived components take a scoped logger so their lines are easy to grep:
//
//	log := logging.For("dispatcher")
//	log.Info("job %s admitted", id)
package logging
