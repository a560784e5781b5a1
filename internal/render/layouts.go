package render

// itemBody is the title, excerpt and read-more link shared by both section
// layouts; the loop variable is always c.
const itemBody = `{% if c.link != "" %}   <a href='{{ c.link | attr }}' style='font-weight:bold;' class='campaignpress-link'>{{ c.title }}</a>
{% else %}{{ c.title }}{% endif %}   <div style='font-size:95%;margin-top:10px'>
{{ c.excerpt }}   </div>
   <div style='font-size:95%;margin-top:10px'>
    <a href='{{ c.link | attr }}' style='font-weight:bold;' class='campaignpress-link'>READ MORE</a>
   </div>
`

var layoutSources = map[string]string{
	"document": ` <div style='width: {{ width }}; margin: auto; background: #ffffff; font-size: 100%;'>
{{ rows }} </div>

<style>
* { font-family: Arial, sans-serif; }
img { border-radius: 3px; }
</style>
`,

	"text": `<div id="{{ css_id | attr }}" style="box-sizing: border-box; margin: 0 20px; padding: 10px; font-size: 80%;">{{ text }}</div>`,

	"spacer": `<div style="width: 100%; height: {{ height }}px;">&nbsp;</div>`,

	"image": `<div style="width: 100%; display: flex; box-sizing: border-box; padding: {{ padding }};">` +
		`{% if link != "" %}<a href="{{ link | attr }}" style="width: 100%; display: flex;" class="campaignpress-link">{% endif %}` +
		` <img src="{{ url | attr }}" alt="{{ alt | attr }}" width="{{ width }}" height="auto" style="margin: 0 auto; padding: 0px; box-sizing: border-box;" class="campaignpress-image" />` +
		`{% if link != "" %}</a>{% endif %}</div>`,

	"two_col": `<style> p { margin-top: 0; }</style><div style="width: 100%;">` +
		` <div style="width: 50%; float: left;">{{ left }} </div>` +
		` <div style="width: 50%; float: left;">{{ right }} </div>` +
		` <div style="clear: both;"></div></div>`,

	"section_grid": `<table cellpadding=10 cellspacing=0 border=0>{% for c in cells %}{% if c.open_row %}<tr>
{% endif %} <td {% if c.full %}colspan='2' width='100%'{% else %}width='50%'{% endif %} valign='top'>
{% if c.thumbnail != "" %}   <a href='{{ c.link | attr }}' style='display:block; padding-bottom:20px;' class='campaignpress-link'>
    <img src='{{ c.thumbnail | attr }}' alt='{{ c.title | attr }}' width='100%' height='auto' class='campaignpress-image' />
   </a>{% endif %}` + itemBody + ` </td>
{% if c.close_row %} </tr>
{% endif %}{% endfor %}</table>`,

	"section_rows": `<table cellpadding=10 cellspacing=0 border=0>{% for c in items %}<tr>
{% if c.thumbnail != "" %} <td width='35%' valign='top'>
   <a href='{{ c.link | attr }}' style='display:block; padding-bottom:0px;' class='campaignpress-link'>
    <img src='{{ c.thumbnail | attr }}' alt='{{ c.title | attr }}' width='100%' height='auto' class='campaignpress-image' />
   </a> </td>
{% endif %} <td width='65%' valign='top'>
` + itemBody + ` </td>
 </tr>
{% endfor %}</table>`,
}
