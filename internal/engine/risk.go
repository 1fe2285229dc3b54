package engine

import (
	"time"

	"forge/internal/domain"
)

// drawdownLocked returns the fractional decline from the peak balance.
func (s *Session) drawdownLocked() float64 {
	if s.peakBalance <= 0 {
		return 0
	}
	return (s.peakBalance - s.balance) / s.peakBalance
}

// evaluateRiskLocked re-evaluates the risk guardian. Called after every
// balance change. The killswitch is a one-way latch: once drawdown
// crosses the threshold it stays active until an explicit reset, even if
// the balance recovers.
func (s *Session) evaluateRiskLocked() []Event {
	if s.balance > s.peakBalance {
		s.peakBalance = s.balance
	}
	drawdown := s.drawdownLocked()
	s.refreshSafetyLocked()

	if drawdown <= s.cfg.MaxDrawdown || s.status.KillswitchActive {
		return nil
	}

	s.status.KillswitchActive = true
	s.status.LiveTradingEnabled = false
	s.status.SecurityLevel = domain.SecurityLevelCritical

	s.logger.Warn().
		Float64("drawdown", drawdown).
		Float64("max_drawdown", s.cfg.MaxDrawdown).
		Float64("balance", s.balance).
		Float64("peak_balance", s.peakBalance).
		Msg("risk guardian triggered: max drawdown exceeded, trading halted")

	return []Event{{
		Type:      EventKillswitch,
		Balance:   s.balance,
		Drawdown:  drawdown,
		Timestamp: time.Now(),
	}}
}

// refreshSafetyLocked derives the safety score from the remaining
// drawdown headroom: 100 at the peak, 0 at the killswitch threshold.
func (s *Session) refreshSafetyLocked() {
	score := 100.0
	if s.cfg.MaxDrawdown > 0 {
		score = (1 - s.drawdownLocked()/s.cfg.MaxDrawdown) * 100
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	s.status.SafetyScore = score

	switch {
	case s.status.KillswitchActive || score < 40:
		s.status.SecurityLevel = domain.SecurityLevelCritical
	case score < 75:
		s.status.SecurityLevel = domain.SecurityLevelCalibrating
	default:
		s.status.SecurityLevel = domain.SecurityLevelSecure
	}
}

// ResetKillswitch clears the latch and re-bases the peak balance to the
// current balance. Without the re-base the guardian would re-trigger on
// the next balance change, since the latch fires whenever drawdown
// exceeds the threshold while disarmed.
func (s *Session) ResetKillswitch() domain.SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.KillswitchActive = false
	s.peakBalance = s.balance
	s.refreshSafetyLocked()

	s.logger.Info().
		Float64("balance", s.balance).
		Msg("killswitch reset, peak balance re-based")
	return s.status
}
