package lifecycle

// Observer 接收状态转换通知。
type Observer interface {
	// OnTransition 每次转换都会调用
	OnTransition(t Transition)
	// OnCritical 进入 ERROR 时调用
	OnCritical(t Transition)
	// OnCleanup 进入 CLOSED 时调用
	OnCleanup(t Transition)
}

// Observers 组合多个观察者，按注册顺序通知。
type Observers []Observer

func (o Observers) OnTransition(t Transition) {
	for _, obs := range o {
		obs.OnTransition(t)
	}
}

func (o Observers) OnCritical(t Transition) {
	for _, obs := range o {
		obs.OnCritical(t)
	}
}

func (o Observers) OnCleanup(t Transition) {
	for _, obs := range o {
		obs.OnCleanup(t)
	}
}

// Funcs 以函数字段实现 Observer，未设置的钩子忽略。
type Funcs struct {
	Transition func(Transition)
	Critical   func(Transition)
	Cleanup    func(Transition)
}

func (f Funcs) OnTransition(t Transition) {
	if f.Transition != nil {
		f.Transition(t)
	}
}

func (f Funcs) OnCritical(t Transition) {
	if f.Critical != nil {
		f.Critical(t)
	}
}

func (f Funcs) OnCleanup(t Transition) {
	if f.Cleanup != nil {
		f.Cleanup(t)
	}
}

// Dispatch 把一次转换派发给观察者：先通知转换，再按目标状态触发钩子。
func Dispatch(obs Observer, t Transition) {
	if obs == nil {
		return
	}
	obs.OnTransition(t)
	switch t.To {
	case StateError:
		obs.OnCritical(t)
	case StateClosed:
		obs.OnCleanup(t)
	}
}
