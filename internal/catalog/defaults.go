package catalog

import "github.com/geraldosnetto/agro-sub002/pkg/models"

// Default is the catalog of commodities tracked by the dashboard.
var Default = New([]Commodity{
	{
		Commodity:   models.Commodity{Slug: "soja", Name: "Soja", Category: models.CategoryGrain, Unit: "R$/sc 60kg", Active: true},
		YahooSymbol: "ZS=F", YahooUnit: "USc/bu", Exchange: "CBOT",
		Pages: []Page{
			{Site: SiteNoticiasAgricolas, Path: "/cotacoes/soja/soja-mercado-fisico-sindicatos-e-cooperativas", Keyword: "soja"},
			{Site: SiteCepea, Path: "/br/indicador/soja.aspx", Keyword: "paranaguá", Market: "Paranaguá (PR)"},
		},
		Keywords: []string{"soja", "soybean", "farelo", "complexo soja"},
	},
	{
		Commodity:   models.Commodity{Slug: "milho", Name: "Milho", Category: models.CategoryGrain, Unit: "R$/sc 60kg", Active: true},
		YahooSymbol: "ZC=F", YahooUnit: "USc/bu", Exchange: "CBOT",
		Pages: []Page{
			{Site: SiteNoticiasAgricolas, Path: "/cotacoes/milho/milho-mercado-fisico-sindicatos-e-cooperativas", Keyword: "milho"},
			{Site: SiteCepea, Path: "/br/indicador/milho.aspx", Keyword: "campinas", Market: "Campinas (SP)"},
		},
		Keywords: []string{"milho", "corn", "safrinha"},
	},
	{
		Commodity:   models.Commodity{Slug: "trigo", Name: "Trigo", Category: models.CategoryGrain, Unit: "R$/t", Active: true},
		YahooSymbol: "ZW=F", YahooUnit: "USc/bu", Exchange: "CBOT",
		Pages: []Page{
			{Site: SiteCepea, Path: "/br/indicador/trigo.aspx", Keyword: "paraná", Market: "Paraná"},
		},
		Keywords: []string{"trigo", "wheat"},
	},
	{
		Commodity:   models.Commodity{Slug: "arroz", Name: "Arroz", Category: models.CategoryGrain, Unit: "R$/sc 50kg", Active: true},
		YahooSymbol: "ZR=F", YahooUnit: "USD/cwt", Exchange: "CBOT",
		Pages: []Page{
			{Site: SiteCepea, Path: "/br/indicador/arroz.aspx", Keyword: "rio grande do sul", Market: "Rio Grande do Sul"},
		},
		Keywords: []string{"arroz", "rice"},
	},
	{
		Commodity:   models.Commodity{Slug: "feijao", Name: "Feijão", Category: models.CategoryGrain, Unit: "R$/sc 60kg", Active: false},
		Keywords:    []string{"feijão", "feijao"},
	},
	{
		Commodity:   models.Commodity{Slug: "boi-gordo", Name: "Boi Gordo", Category: models.CategoryLivestock, Unit: "R$/@", Active: true},
		YahooSymbol: "LE=F", YahooUnit: "USc/lb", Exchange: "CME",
		Pages: []Page{
			{Site: SiteNoticiasAgricolas, Path: "/cotacoes/boi-gordo/boi-gordo-mercado-fisico", Keyword: "@"},
			{Site: SiteCepea, Path: "/br/indicador/boi-gordo.aspx", Keyword: "são paulo", Market: "São Paulo"},
		},
		Keywords: []string{"boi gordo", "boi", "arroba", "pecuária", "gado de corte"},
	},
	{
		Commodity:   models.Commodity{Slug: "bezerro", Name: "Bezerro", Category: models.CategoryLivestock, Unit: "R$/cabeça", Active: true},
		Pages: []Page{
			{Site: SiteCepea, Path: "/br/indicador/bezerro.aspx", Keyword: "mato grosso do sul", Market: "Mato Grosso do Sul"},
		},
		Keywords: []string{"bezerro", "reposição"},
	},
	{
		Commodity:   models.Commodity{Slug: "leite", Name: "Leite", Category: models.CategoryLivestock, Unit: "R$/litro", Active: true},
		Pages: []Page{
			{Site: SiteCepea, Path: "/br/indicador/leite.aspx", Keyword: "brasil", Market: "Média Brasil"},
		},
		Keywords: []string{"leite", "lácteos", "laticínio"},
	},
	{
		Commodity:   models.Commodity{Slug: "cafe", Name: "Café Arábica", Category: models.CategoryOther, Unit: "R$/sc 60kg", Active: true},
		YahooSymbol: "KC=F", YahooUnit: "USc/lb", Exchange: "ICE",
		Pages: []Page{
			{Site: SiteNoticiasAgricolas, Path: "/cotacoes/cafe/cafe-arabica-mercado-fisico-tipo-6-duro", Keyword: "café"},
			{Site: SiteCepea, Path: "/br/indicador/cafe.aspx", Keyword: "arábica", Market: "São Paulo"},
		},
		Keywords: []string{"café", "cafe", "coffee", "arábica", "conilon"},
	},
	{
		Commodity:   models.Commodity{Slug: "acucar", Name: "Açúcar", Category: models.CategorySugarEnergy, Unit: "R$/sc 50kg", Active: true},
		YahooSymbol: "SB=F", YahooUnit: "USc/lb", Exchange: "ICE",
		Pages: []Page{
			{Site: SiteCepea, Path: "/br/indicador/acucar.aspx", Keyword: "cristal", Market: "São Paulo"},
		},
		Keywords: []string{"açúcar", "acucar", "sugar", "cana"},
	},
	{
		Commodity:   models.Commodity{Slug: "etanol", Name: "Etanol Hidratado", Category: models.CategorySugarEnergy, Unit: "R$/litro", Active: true},
		Pages: []Page{
			{Site: SiteCepea, Path: "/br/indicador/etanol.aspx", Keyword: "hidratado", Market: "São Paulo"},
		},
		Keywords: []string{"etanol", "ethanol", "biocombustível"},
	},
	{
		Commodity:   models.Commodity{Slug: "algodao", Name: "Algodão", Category: models.CategoryFiber, Unit: "c/lp", Active: true},
		YahooSymbol: "CT=F", YahooUnit: "USc/lb", Exchange: "ICE",
		Pages: []Page{
			{Site: SiteCepea, Path: "/br/indicador/algodao.aspx", Keyword: "pluma", Market: "São Paulo"},
		},
		Keywords: []string{"algodão", "algodao", "cotton", "pluma"},
	},
})
