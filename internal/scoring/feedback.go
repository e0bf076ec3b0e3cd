package scoring

// feedback 按触发顺序收集反馈与建议，重复内容只保留第一次
type feedback struct {
	notes []string
	recs  []string
	seen  map[string]bool
}

func newFeedback() *feedback {
	return &feedback{seen: map[string]bool{}}
}

func (f *feedback) note(msgs ...string) {
	for _, m := range msgs {
		if f.seen["n:"+m] {
			continue
		}
		f.seen["n:"+m] = true
		f.notes = append(f.notes, m)
	}
}

func (f *feedback) recommend(msgs ...string) {
	for _, m := range msgs {
		if f.seen["r:"+m] {
			continue
		}
		f.seen["r:"+m] = true
		f.recs = append(f.recs, m)
	}
}
