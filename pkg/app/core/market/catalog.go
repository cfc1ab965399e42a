package market

const unitCNYPerTon = "元/吨"

// DefaultCatalog returns a registry preloaded with the steel, iron ore and
// chemicals instruments.
func DefaultCatalog() *Registry {
	r := NewRegistry()
	for _, in := range defaultInstruments() {
		if err := r.Register(in); err != nil {
			panic(err)
		}
	}
	return r
}

func defaultInstruments() []*Instrument {
	steel := func(id, name string, attrs ...AttributeSpec) *Instrument {
		return &Instrument{ID: id, CategoryID: "steel", CategoryName: "钢材", Name: name, Unit: unitCNYPerTon, Attributes: attrs}
	}
	ore := func(id, name string, attrs ...AttributeSpec) *Instrument {
		return &Instrument{ID: id, CategoryID: "iron-ore", CategoryName: "铁矿", Name: name, Unit: unitCNYPerTon, Attributes: attrs}
	}
	chem := func(id, name string, attrs ...AttributeSpec) *Instrument {
		return &Instrument{ID: id, CategoryID: "chemicals", CategoryName: "化工", Name: name, Unit: unitCNYPerTon, Attributes: attrs}
	}
	spec := func(name string, options ...string) AttributeSpec {
		return AttributeSpec{Name: name, Options: options}
	}

	return []*Instrument{
		steel("rebar", "螺纹钢",
			spec("品牌", "沙钢", "永钢", "中天", "马钢", "宝钢", "本钢", "鞍钢"),
			spec("规格", "Φ12", "Φ14", "Φ16", "Φ18-25", "Φ28", "Φ32"),
			spec("直径", "12mm", "16mm", "20mm", "25mm"),
			spec("长度", "9m", "12m"),
			spec("材质", "HRB400", "HRB400E", "HRB500"),
		),
		steel("hrc", "热轧卷板",
			spec("品牌", "沙钢", "永钢", "宝钢", "宁钢", "通钢", "首钢"),
			spec("规格", "2.0-3.0", "3.0-4.0", "4.75-11.75", "11.75+"),
			spec("材质", "Q235B", "Q355B", "SS400"),
		),
		steel("crc", "冷轧卷板",
			spec("品牌", "宝钢", "鞍钢", "本钢", "马钢", "首钢"),
			spec("规格", "0.5mm", "0.8mm", "1.0mm", "1.2mm", "1.5mm", "2.0mm"),
			spec("材质", "SPCC", "SPCD", "DC01"),
		),
		steel("strip", "带钢",
			spec("品牌", "唐山瑞丰", "津西", "德龙", "建龙"),
			spec("规格", "2.5*232", "2.5*355", "3.5*685"),
			spec("材质", "Q235", "Q355"),
		),
		steel("billet", "钢坯",
			spec("品牌", "唐钢", "燕钢", "松汀", "荣信"),
			spec("规格", "150*150"),
			spec("材质", "Q235", "Q355", "20MnSi"),
		),
		ore("pb-fines", "PB粉",
			spec("港口", "日照港", "青岛港", "曹妃甸", "岚山港", "连云港", "天津港"),
			spec("品牌", "力拓", "必和必拓", "FMG", "淡水河谷"),
			spec("供应商", "中粮", "中建材", "海汽大宗", "沙钢贸易"),
			spec("品位", "61.5%", "62%", "65%"),
		),
		ore("seaborne", "海漂铁矿石",
			spec("装运港", "海德兰港", "达皮尔港", "图巴朗港"),
			spec("品牌", "PB粉", "纽曼粉", "金布巴粉", "卡粉"),
			spec("供应商", "Rio Tinto", "BHP", "Vale", "FMG"),
			spec("品位", "61.5%", "62%", "65%"),
		),
		chem("methanol", "甲醇",
			spec("品级", "优等品", "一等品", "合格品"),
			spec("产地", "中东", "南美", "国产"),
			spec("储存地", "太仓隔库", "张家港库", "南通库"),
		),
		chem("benzene", "纯苯",
			spec("品级", "石油苯", "加氢苯", "焦化苯"),
			spec("产地", "江苏", "浙江", "山东"),
			spec("规格", "工业级", "试剂级"),
		),
		chem("styrene", "苯乙烯",
			spec("品级", "优等品", "一等品"),
			spec("产地", "常州", "宁波", "上海"),
			spec("运输方式", "船运", "槽车"),
		),
	}
}
