package tickrtos

// onSystick is registered with the interrupt controller as the 1kHz system
// tick handler (original_source/src/Scheduler.cpp's systick_Handler). It
// advances the clock by one duration unit and moves any task whose
// wake-up time has arrived from the timeout queue to the ready queue.
func (s *Scheduler) onSystick() {
	s.mu.Lock()
	s.now = s.now.Add(Duration(s.cfg.DurationUnitMS))
	s.hooksImpl.EnterSystick()

	woke := false
	for {
		front, ok := s.timeout.Front(), !s.timeout.Empty()
		if !ok || s.now.Before(front.wakeAt) {
			break
		}
		t := s.timeout.PopFront()
		if t.state == stateWaiting && t.waitingOn != nil {
			cv := t.waitingOn
			cv.waiters.Erase(t)
			t.waitingOn = nil
			t.timedOut = true
			s.hooksImpl.TaskWaitTimeout(t, cv, s.now)
		}
		t.state = stateReady
		t.lastStarted = s.now
		s.ready.InsertWhen(lessReady, t)
		s.hooksImpl.TaskReady(t)
		woke = true
	}

	s.hooksImpl.ExitSystick(woke)
	s.mu.Unlock()

	if woke {
		s.kick()
	}
}
